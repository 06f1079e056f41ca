package handlers

import (
	"context"
	"net/http"

	"github.com/maruel/tallerdb/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version string
	store   string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(cfg *Config) *HealthHandler {
	return &HealthHandler{version: cfg.Version, store: cfg.Store}
}

// Health handles health check requests.
func (h *HealthHandler) Health(_ context.Context, _ *dto.Empty) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{Status: "ok", Version: h.version, Store: h.store}, nil
}

// NotFound is the catch-all for unknown API routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, dto.NotFound("route "+r.URL.Path))
}
