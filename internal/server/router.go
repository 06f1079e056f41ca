// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/server/handlers"
	"github.com/maruel/tallerdb/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router. Every endpoint lives
// under /api; a nil limits disables rate limiting.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, limits *ratelimit.Config) http.Handler {
	mux := &http.ServeMux{}
	authh := handlers.NewAuthHandler(svc, cfg)
	adminh := handlers.NewAdminHandler(svc)
	invh := handlers.NewInventoryHandler(svc)
	salesh := handlers.NewSalesHandler(svc)
	budh := handlers.NewBudgetHandler(svc)
	clih := handlers.NewClientHandler(svc)
	jobh := handlers.NewJobHandler(svc)
	cashh := handlers.NewCashHandler(svc)
	dashh := handlers.NewDashboardHandler(svc)
	streamh := handlers.NewStreamHandler(svc)
	payh := handlers.PaymentsHandler{}

	const (
		admin     = identity.PermAdmin
		sales     = identity.PermSales
		inventory = identity.PermInventory
		cash      = identity.PermCash
		workshop  = identity.PermWorkshop
		budgets   = identity.PermBudgets
	)

	// Health check
	hh := handlers.NewHealthHandler(cfg)
	mux.Handle("GET /api/health", Wrap(hh.Health, cfg, limits))

	// Auth endpoints
	mux.Handle("POST /api/v1/auth/login", Wrap(authh.Login, cfg, limits))
	mux.Handle("POST /api/v1/auth/register", Wrap(authh.Register, cfg, limits))
	mux.Handle("GET /api/v1/auth/me", WrapAuth(authh.Me, svc, cfg, limits))

	// Account management
	mux.Handle("POST /api/v1/admin/accounts", WrapAuth(adminh.CreateAccount, svc, cfg, limits, admin))
	mux.Handle("GET /api/v1/admin/accounts", WrapAuth(adminh.ListAccounts, svc, cfg, limits, admin))
	mux.Handle("PUT /api/v1/admin/accounts/{id}/permissions", WrapAuth(adminh.SetPermissions, svc, cfg, limits, admin))

	// Payments
	mux.Handle("POST /api/v1/payments/preference", WrapAuth(payh.CreatePreference, svc, cfg, limits, sales))

	// Products
	mux.Handle("GET /api/v1/products", WrapAuth(invh.ListProducts, svc, cfg, limits))
	mux.Handle("POST /api/v1/products", WrapAuth(invh.CreateProduct, svc, cfg, limits, inventory))
	mux.Handle("POST /api/v1/products/import", WrapAuth(invh.ImportProducts, svc, cfg, limits, inventory))
	mux.Handle("GET /api/v1/products/{chunk}/{id}", WrapAuth(invh.GetProduct, svc, cfg, limits))
	mux.Handle("PATCH /api/v1/products/{chunk}/{id}", WrapAuth(invh.UpdateProduct, svc, cfg, limits, inventory))
	mux.Handle("POST /api/v1/products/{chunk}/{id}/stock", WrapAuth(invh.AdjustStock, svc, cfg, limits, inventory))
	mux.Handle("DELETE /api/v1/products/{chunk}/{id}", WrapAuth(invh.DeleteProduct, svc, cfg, limits, inventory))

	// Sales
	mux.Handle("POST /api/v1/sales", WrapAuth(salesh.Checkout, svc, cfg, limits, sales))
	mux.Handle("GET /api/v1/sales", WrapAuth(salesh.ListSales, svc, cfg, limits, sales))
	mux.Handle("GET /api/v1/sales/{chunk}/{id}", WrapAuth(salesh.GetSale, svc, cfg, limits, sales))
	mux.Handle("POST /api/v1/sales/{chunk}/{id}/void", WrapAuth(salesh.VoidSale, svc, cfg, limits, sales))
	mux.Handle("DELETE /api/v1/sales/{chunk}/{id}", WrapAuth(salesh.DeleteSale, svc, cfg, limits, admin))

	// Budgets
	mux.Handle("POST /api/v1/budgets", WrapAuth(budh.CreateBudget, svc, cfg, limits, budgets))
	mux.Handle("GET /api/v1/budgets", WrapAuth(budh.ListBudgets, svc, cfg, limits, budgets))
	mux.Handle("GET /api/v1/budgets/{chunk}/{id}", WrapAuth(budh.GetBudget, svc, cfg, limits, budgets))
	mux.Handle("PUT /api/v1/budgets/{chunk}/{id}/status", WrapAuth(budh.SetBudgetStatus, svc, cfg, limits, budgets))
	mux.Handle("POST /api/v1/budgets/{chunk}/{id}/convert", WrapAuth(budh.ConvertBudget, svc, cfg, limits, budgets))

	// Clients
	mux.Handle("GET /api/v1/clients", WrapAuth(clih.ListClients, svc, cfg, limits))
	mux.Handle("POST /api/v1/clients", WrapAuth(clih.CreateClient, svc, cfg, limits, sales, budgets, workshop))
	mux.Handle("GET /api/v1/clients/{chunk}/{id}", WrapAuth(clih.GetClient, svc, cfg, limits))
	mux.Handle("PATCH /api/v1/clients/{chunk}/{id}", WrapAuth(clih.UpdateClient, svc, cfg, limits, sales, budgets, workshop))
	mux.Handle("DELETE /api/v1/clients/{chunk}/{id}", WrapAuth(clih.DeleteClient, svc, cfg, limits, admin))

	// Workshop jobs
	mux.Handle("POST /api/v1/jobs", WrapAuth(jobh.CreateJob, svc, cfg, limits, workshop))
	mux.Handle("GET /api/v1/jobs", WrapAuth(jobh.ListJobs, svc, cfg, limits, workshop))
	mux.Handle("GET /api/v1/jobs/{chunk}/{id}", WrapAuth(jobh.GetJob, svc, cfg, limits, workshop))
	mux.Handle("PATCH /api/v1/jobs/{chunk}/{id}", WrapAuth(jobh.UpdateJob, svc, cfg, limits, workshop))
	mux.Handle("PUT /api/v1/jobs/{chunk}/{id}/status", WrapAuth(jobh.SetJobStatus, svc, cfg, limits, workshop))
	mux.Handle("POST /api/v1/jobs/{chunk}/{id}/notes", WrapAuth(jobh.AddJobNote, svc, cfg, limits, workshop))
	mux.Handle("DELETE /api/v1/jobs/{chunk}/{id}", WrapAuth(jobh.DeleteJob, svc, cfg, limits, admin))

	// Cash register
	mux.Handle("GET /api/v1/cash", WrapAuth(cashh.ListCash, svc, cfg, limits, cash))
	mux.Handle("GET /api/v1/cash/session", WrapAuth(cashh.CurrentBalance, svc, cfg, limits, cash))
	mux.Handle("POST /api/v1/cash/session", WrapAuth(cashh.OpenSession, svc, cfg, limits, cash))
	mux.Handle("POST /api/v1/cash/session/close", WrapAuth(cashh.CloseSession, svc, cfg, limits, cash))
	mux.Handle("POST /api/v1/cash/movements", WrapAuth(cashh.AddMovement, svc, cfg, limits, cash))
	mux.Handle("GET /api/v1/cash/sessions/{chunk}/{id}/balance", WrapAuth(cashh.SessionBalance, svc, cfg, limits, cash))

	// Dashboard
	mux.Handle("GET /api/v1/summary", WrapAuth(dashh.Summary, svc, cfg, limits))
	mux.Handle("GET /api/v1/locations", WrapAuth(dashh.Locations, svc, cfg, limits))

	// Live snapshots
	mux.Handle("GET /api/v1/stream/{collection}", RequireAuth(svc, cfg, limits)(http.HandlerFunc(streamh.Stream)))

	// Catch-all for unknown API routes
	mux.HandleFunc("/api/", handlers.NotFound)
	return mux
}
