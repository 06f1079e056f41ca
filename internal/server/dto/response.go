// Defines response types for the API.

package dto

import (
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
)

// HealthResponse reports server status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// UserResponse is a user as seen by the API.
type UserResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Created     string   `json:"created"`
}

// NewUserResponse converts a user.
func NewUserResponse(u *identity.User) *UserResponse {
	perms := make([]string, len(u.Permissions))
	for i, p := range u.Permissions {
		perms[i] = string(p)
	}
	return &UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		Permissions: perms,
		Created:     u.Created.UTC().Format(time.RFC3339),
	}
}

// AuthResponse carries a bearer token.
type AuthResponse struct {
	Token     string        `json:"token"`
	ExpiresAt string        `json:"expiresAt"`
	User      *UserResponse `json:"user"`
}

// AccountResponse is the result of an admin account creation.
type AccountResponse struct {
	User    *UserResponse `json:"user"`
	Created bool          `json:"created"`
}

// ListUsersResponse lists accounts.
type ListUsersResponse struct {
	Users []*UserResponse `json:"users"`
}

// OKResponse acknowledges an operation without payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// LocationsResponse lists stock locations.
type LocationsResponse struct {
	Locations []string `json:"locations"`
}

// ProductsResponse lists products.
type ProductsResponse struct {
	Products []*pos.Product `json:"products"`
}

// StockResponse is the stock left after an adjustment.
type StockResponse struct {
	Location string `json:"location"`
	Stock    int64  `json:"stock"`
}

// ImportResponse reports a product import.
type ImportResponse struct {
	chunk.ImportResult
}

// SalesResponse lists sales.
type SalesResponse struct {
	Sales []*pos.Sale `json:"sales"`
	Total pos.Money   `json:"total"`
}

// BudgetsResponse lists budgets.
type BudgetsResponse struct {
	Budgets []*pos.Budget `json:"budgets"`
}

// ClientsResponse lists clients.
type ClientsResponse struct {
	Clients []*pos.Client `json:"clients"`
}

// JobsResponse lists workshop jobs.
type JobsResponse struct {
	Jobs []*pos.Job `json:"jobs"`
}

// CashResponse lists cash register entries.
type CashResponse struct {
	Entries []*pos.CashEntry `json:"entries"`
}
