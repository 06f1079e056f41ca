// Handles the cash register and the dashboard.

package handlers

import (
	"context"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
	"github.com/maruel/tallerdb/internal/server/dto"
)

// CashHandler handles cash register requests.
type CashHandler struct {
	pos *pos.Service
}

// NewCashHandler creates a new cash handler.
func NewCashHandler(svc *Services) *CashHandler {
	return &CashHandler{pos: svc.POS}
}

// ListCash lists every session and movement.
func (h *CashHandler) ListCash(ctx context.Context, _ *identity.User, _ *dto.Empty) (*dto.CashResponse, error) {
	e, err := h.pos.ListCash(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return &dto.CashResponse{Entries: e}, nil
}

// CurrentBalance returns the balance of the open session.
func (h *CashHandler) CurrentBalance(ctx context.Context, _ *identity.User, _ *dto.Empty) (*pos.CashBalance, error) {
	b, err := h.pos.CurrentBalance(ctx)
	return b, MapError(err)
}

// SessionBalance returns the balance of any session, open or closed.
func (h *CashHandler) SessionBalance(ctx context.Context, _ *identity.User, req *dto.RecordPath) (*pos.CashBalance, error) {
	b, err := h.pos.Balance(ctx, req.Ref())
	return b, MapError(err)
}

// OpenSession opens the register.
func (h *CashHandler) OpenSession(ctx context.Context, user *identity.User, req *dto.OpenSessionRequest) (*pos.CashEntry, error) {
	e, err := h.pos.OpenSession(ctx, viewer(user), req.Opening)
	return e, MapError(err)
}

// AddMovement records income or an expense in the open session.
func (h *CashHandler) AddMovement(ctx context.Context, user *identity.User, req *dto.MovementRequest) (*pos.CashEntry, error) {
	e, err := h.pos.AddMovement(ctx, viewer(user), req.Kind, req.Amount, req.Concept)
	return e, MapError(err)
}

// CloseSession closes the register.
func (h *CashHandler) CloseSession(ctx context.Context, user *identity.User, req *dto.CloseSessionRequest) (*pos.CashBalance, error) {
	b, err := h.pos.CloseSession(ctx, viewer(user), req.Counted)
	return b, MapError(err)
}

// DashboardHandler serves aggregate views.
type DashboardHandler struct {
	pos *pos.Service
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(svc *Services) *DashboardHandler {
	return &DashboardHandler{pos: svc.POS}
}

// Summary returns the dashboard counters for the caller.
func (h *DashboardHandler) Summary(ctx context.Context, user *identity.User, _ *dto.Empty) (*pos.Summary, error) {
	s, err := h.pos.Summary(ctx, viewer(user))
	return s, MapError(err)
}

// Locations lists the stock locations.
func (h *DashboardHandler) Locations(_ context.Context, _ *identity.User, _ *dto.Empty) (*dto.LocationsResponse, error) {
	return &dto.LocationsResponse{Locations: h.pos.Locations()}, nil
}
