// Streams collection snapshots as server-sent events.

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
	"github.com/maruel/tallerdb/internal/server/dto"
	"github.com/maruel/tallerdb/internal/server/reqctx"
)

// streamPerms is the permission needed to follow each collection. Products
// and clients are open to every signed in user.
var streamPerms = map[string]identity.Permission{
	"sales":   identity.PermSales,
	"budgets": identity.PermBudgets,
	"jobs":    identity.PermWorkshop,
	"cash":    identity.PermCash,
}

// keepAlive is how often a comment line is sent on an idle stream.
const keepAlive = 25 * time.Second

// StreamHandler serves live snapshots.
type StreamHandler struct {
	pos *pos.Service
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *Services) *StreamHandler {
	return &StreamHandler{pos: svc.POS}
}

// Stream sends a `snapshot` event with the full flattened list of
// {collection} now and after every change, until the client goes away. It
// expects the authenticated user in the request context.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := reqctx.User(ctx)
	if user == nil {
		WriteErrorResponse(w, dto.Unauthorized("Unauthorized"))
		return
	}
	name := r.PathValue("collection")
	if p, ok := streamPerms[name]; ok && !user.Permissions.Has(p) {
		WriteErrorResponse(w, dto.Forbidden("Forbidden: requires "+string(p)))
		return
	}
	snaps, err := h.pos.Follow(ctx, viewer(user), name)
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	t := time.NewTicker(keepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case recs, ok := <-snaps:
			if !ok {
				return
			}
			data, err := json.Marshal(recs)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to encode snapshot", "collection", name, "err", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			slog.WarnContext(ctx, "Stream flush failed", "collection", name, "err", err)
			return
		}
	}
}
