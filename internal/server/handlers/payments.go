// Handles the payment gateway endpoints.

package handlers

import (
	"context"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/server/dto"
)

// PaymentsHandler fronts the payment gateway.
type PaymentsHandler struct{}

// CreatePreference would create a hosted checkout link. The integration is
// disabled, so it always fails.
func (PaymentsHandler) CreatePreference(_ context.Context, _ *identity.User, _ *dto.PaymentPreferenceRequest) (*dto.OKResponse, error) {
	return nil, dto.NotImplemented("payments")
}
