// Handles sales and budgets.

package handlers

import (
	"context"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
	"github.com/maruel/tallerdb/internal/server/dto"
)

// SalesHandler handles sale requests.
type SalesHandler struct {
	pos *pos.Service
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(svc *Services) *SalesHandler {
	return &SalesHandler{pos: svc.POS}
}

// Checkout sells the requested lines on behalf of the caller.
func (h *SalesHandler) Checkout(ctx context.Context, user *identity.User, req *dto.CheckoutRequest) (*pos.Sale, error) {
	s, err := h.pos.Checkout(ctx, viewer(user), req.CheckoutInput)
	return s, MapError(err)
}

// ListSales lists the sales visible to the caller, most recent first.
func (h *SalesHandler) ListSales(ctx context.Context, user *identity.User, req *dto.ListSalesRequest) (*dto.SalesResponse, error) {
	sales, err := h.pos.ListSales(ctx, viewer(user), pos.SaleFilter{From: req.From, To: req.To, IncludeVoided: req.Voided})
	if err != nil {
		return nil, MapError(err)
	}
	out := &dto.SalesResponse{Sales: sales}
	for _, s := range sales {
		if s.Status != pos.SaleVoided {
			out.Total += s.Total
		}
	}
	return out, nil
}

// GetSale returns one sale.
func (h *SalesHandler) GetSale(ctx context.Context, user *identity.User, req *dto.RecordPath) (*pos.Sale, error) {
	s, err := h.pos.GetSale(ctx, viewer(user), req.Ref())
	return s, MapError(err)
}

// VoidSale cancels a sale and restocks its products.
func (h *SalesHandler) VoidSale(ctx context.Context, user *identity.User, req *dto.RecordPath) (*pos.Sale, error) {
	s, err := h.pos.VoidSale(ctx, viewer(user), req.Ref())
	return s, MapError(err)
}

// DeleteSale removes a sale record without restocking.
func (h *SalesHandler) DeleteSale(ctx context.Context, user *identity.User, req *dto.RecordPath) (*dto.OKResponse, error) {
	if err := h.pos.DeleteSale(ctx, viewer(user), req.Ref()); err != nil {
		return nil, MapError(err)
	}
	return &dto.OKResponse{OK: true}, nil
}

// BudgetHandler handles quote requests.
type BudgetHandler struct {
	pos *pos.Service
}

// NewBudgetHandler creates a new budget handler.
func NewBudgetHandler(svc *Services) *BudgetHandler {
	return &BudgetHandler{pos: svc.POS}
}

// CreateBudget creates a quote.
func (h *BudgetHandler) CreateBudget(ctx context.Context, user *identity.User, req *dto.CreateBudgetRequest) (*pos.Budget, error) {
	b, err := h.pos.CreateBudget(ctx, viewer(user), req.BudgetInput)
	return b, MapError(err)
}

// ListBudgets lists quotes, most recent first.
func (h *BudgetHandler) ListBudgets(ctx context.Context, _ *identity.User, req *dto.ListByStatusRequest) (*dto.BudgetsResponse, error) {
	b, err := h.pos.ListBudgets(ctx, req.Status)
	if err != nil {
		return nil, MapError(err)
	}
	return &dto.BudgetsResponse{Budgets: b}, nil
}

// GetBudget returns one quote.
func (h *BudgetHandler) GetBudget(ctx context.Context, _ *identity.User, req *dto.RecordPath) (*pos.Budget, error) {
	b, err := h.pos.GetBudget(ctx, req.Ref())
	return b, MapError(err)
}

// SetBudgetStatus approves or rejects a quote.
func (h *BudgetHandler) SetBudgetStatus(ctx context.Context, _ *identity.User, req *dto.SetStatusRequest) (*pos.Budget, error) {
	b, err := h.pos.SetBudgetStatus(ctx, req.Ref(), req.Status)
	return b, MapError(err)
}

// ConvertBudget sells an approved quote. The caller also needs the sales
// permission.
func (h *BudgetHandler) ConvertBudget(ctx context.Context, user *identity.User, req *dto.ConvertBudgetRequest) (*pos.Sale, error) {
	if !user.Permissions.Has(identity.PermSales) {
		return nil, dto.Forbidden("Forbidden: requires sales")
	}
	s, err := h.pos.ConvertBudget(ctx, viewer(user), req.Ref(), req.ConvertInput)
	return s, MapError(err)
}
