// Maps domain errors to API errors and writes error responses.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
	"github.com/maruel/tallerdb/internal/server/dto"
)

// MapError converts an error returned by the services into an error carrying
// an HTTP status. Errors that already carry one are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	var stock *pos.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		return dto.NewAPIError(http.StatusConflict, dto.ErrorCodeInsufficientStock, stock.Error()).
			WithDetails(map[string]any{
				"productId": stock.ProductID,
				"name":      stock.Name,
				"location":  stock.Location,
				"available": stock.Available,
				"requested": stock.Requested,
			})
	case errors.Is(err, chunk.ErrNotFound), errors.Is(err, docstore.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return dto.NewAPIError(http.StatusNotFound, dto.ErrorCodeNotFound, err.Error())
	case errors.Is(err, pos.ErrInvalid), errors.Is(err, chunk.ErrInvalidID), errors.Is(err, identity.ErrInvalidInput):
		return dto.BadRequest(err.Error())
	case errors.Is(err, pos.ErrForbidden):
		return dto.Forbidden(err.Error())
	case errors.Is(err, pos.ErrTransition):
		return dto.NewAPIError(http.StatusUnprocessableEntity, dto.ErrorCodeInvalidTransition, err.Error())
	case errors.Is(err, chunk.ErrChunksFull):
		return dto.NewAPIError(http.StatusConflict, dto.ErrorCodeChunksFull, err.Error())
	case errors.Is(err, pos.ErrSessionOpen), errors.Is(err, pos.ErrNoSession),
		errors.Is(err, identity.ErrExists), errors.Is(err, docstore.ErrConflict):
		return dto.Conflict(err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		return dto.Unauthorized("Invalid credentials")
	}
	return dto.InternalWithError("internal error", err)
}

// WriteErrorResponse writes err as a JSON error response.
// Use this in raw http.HandlerFunc handlers that don't go through Wrap.
func WriteErrorResponse(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := dto.ErrorCodeInternal
	message := "internal error"
	var details map[string]any

	var ews dto.ErrorWithStatus
	if errors.As(MapError(err), &ews) {
		statusCode = ews.StatusCode()
		errorCode = ews.Code()
		message = ews.Error()
		details = ews.Details()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: errorCode, Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
