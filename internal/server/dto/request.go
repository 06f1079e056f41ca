// Defines request types and their validation.

package dto

import (
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/pos"
)

// Validatable is implemented by request types that can validate their fields.
// The Wrap functions use this interface as a type constraint to ensure all
// request types provide validation.
type Validatable interface {
	Validate() error
}

// RecordPath addresses a record by the `{chunk}/{id}` path segments.
type RecordPath struct {
	Chunk string `path:"chunk" json:"-"`
	ID    string `path:"id" json:"-"`
}

// Ref returns the address as a chunk.Ref.
func (p *RecordPath) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: p.Chunk, ID: p.ID}
}

// Validate checks both segments are present.
func (p *RecordPath) Validate() error {
	if p.Chunk == "" {
		return MissingField("chunk")
	}
	if p.ID == "" {
		return MissingField("id")
	}
	return nil
}

// Empty is a request without parameters.
type Empty struct{}

// Validate implements Validatable.
func (*Empty) Validate() error { return nil }

// Auth

// LoginRequest is a request to log in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks required fields.
func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return MissingField("email")
	}
	if r.Password == "" {
		return MissingField("password")
	}
	return nil
}

// RegisterRequest creates the first account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Validate checks required fields.
func (r *RegisterRequest) Validate() error {
	if r.Email == "" {
		return MissingField("email")
	}
	if r.Password == "" {
		return MissingField("password")
	}
	if strings.TrimSpace(r.Name) == "" {
		return MissingField("name")
	}
	return nil
}

// CreateAccountRequest creates or fetches an account on behalf of an admin.
type CreateAccountRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Validate checks required fields.
func (r *CreateAccountRequest) Validate() error {
	if r.Email == "" {
		return MissingField("email")
	}
	if r.Password == "" {
		return MissingField("password")
	}
	return nil
}

// SetPermissionsRequest replaces an account's permissions.
type SetPermissionsRequest struct {
	UserID      string   `path:"id" json:"-"`
	Permissions []string `json:"permissions"`
}

// Validate checks required fields.
func (r *SetPermissionsRequest) Validate() error {
	if r.UserID == "" {
		return MissingField("id")
	}
	return nil
}

// PaymentPreferenceRequest asks the payment gateway for a checkout link.
type PaymentPreferenceRequest struct {
	Title    string    `json:"title"`
	Amount   pos.Money `json:"amount"`
	Quantity int       `json:"quantity"`
}

// Validate implements Validatable.
func (*PaymentPreferenceRequest) Validate() error { return nil }

// Inventory

// ListProductsRequest lists products.
type ListProductsRequest struct {
	// Low restricts the list to products at or below their minimum stock.
	Low string `query:"low"`
}

// Validate implements Validatable.
func (*ListProductsRequest) Validate() error { return nil }

// CreateProductRequest creates a product.
type CreateProductRequest struct {
	pos.Product
}

// Validate checks required fields.
func (r *CreateProductRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return MissingField("name")
	}
	return nil
}

// ImportProductsRequest upserts a batch of products.
type ImportProductsRequest struct {
	Products []pos.Product `json:"products"`
}

// Validate checks required fields.
func (r *ImportProductsRequest) Validate() error {
	if len(r.Products) == 0 {
		return MissingField("products")
	}
	return nil
}

// UpdateProductRequest changes product fields.
type UpdateProductRequest struct {
	RecordPath
	pos.ProductUpdate
}

// AdjustStockRequest adds delta units at a location.
type AdjustStockRequest struct {
	RecordPath
	Location string `json:"location"`
	Delta    int64  `json:"delta"`
}

// Validate checks required fields.
func (r *AdjustStockRequest) Validate() error {
	if err := r.RecordPath.Validate(); err != nil {
		return err
	}
	if r.Delta == 0 {
		return MissingField("delta")
	}
	return nil
}

// Sales

// CheckoutRequest sells the given lines.
type CheckoutRequest struct {
	pos.CheckoutInput
}

// Validate checks required fields.
func (r *CheckoutRequest) Validate() error {
	if len(r.Lines) == 0 {
		return MissingField("lines")
	}
	return nil
}

// ListSalesRequest lists sales in a time window.
type ListSalesRequest struct {
	From   time.Time `query:"from"`
	To     time.Time `query:"to"`
	Voided bool      `query:"voided"`
}

// Validate checks the window is ordered.
func (r *ListSalesRequest) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return BadRequest("to is before from")
	}
	return nil
}

// Budgets

// CreateBudgetRequest creates a quote.
type CreateBudgetRequest struct {
	pos.BudgetInput
}

// Validate checks required fields.
func (r *CreateBudgetRequest) Validate() error {
	if len(r.Lines) == 0 {
		return MissingField("lines")
	}
	if r.ValidDays < 0 {
		return BadRequest("validDays must be non-negative")
	}
	return nil
}

// ListByStatusRequest lists records, optionally filtered by status.
type ListByStatusRequest struct {
	Status string `query:"status"`
}

// Validate implements Validatable.
func (*ListByStatusRequest) Validate() error { return nil }

// SetStatusRequest changes a record's status.
type SetStatusRequest struct {
	RecordPath
	Status string `json:"status"`
}

// Validate checks required fields.
func (r *SetStatusRequest) Validate() error {
	if err := r.RecordPath.Validate(); err != nil {
		return err
	}
	if r.Status == "" {
		return MissingField("status")
	}
	return nil
}

// ConvertBudgetRequest turns an approved budget into a sale.
type ConvertBudgetRequest struct {
	RecordPath
	pos.ConvertInput
}

// Clients

// ListClientsRequest lists clients, or searches them when Q is set.
type ListClientsRequest struct {
	Q string `query:"q"`
}

// Validate implements Validatable.
func (*ListClientsRequest) Validate() error { return nil }

// CreateClientRequest creates a client.
type CreateClientRequest struct {
	pos.Client
}

// Validate checks required fields.
func (r *CreateClientRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return MissingField("name")
	}
	return nil
}

// UpdateClientRequest changes client fields.
type UpdateClientRequest struct {
	RecordPath
	pos.ClientUpdate
}

// Jobs

// CreateJobRequest opens a workshop job.
type CreateJobRequest struct {
	pos.JobInput
}

// Validate checks required fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Device) == "" {
		return MissingField("device")
	}
	if strings.TrimSpace(r.Problem) == "" {
		return MissingField("problem")
	}
	return nil
}

// UpdateJobRequest changes job fields.
type UpdateJobRequest struct {
	RecordPath
	pos.JobUpdate
}

// AddNoteRequest appends a note to a job.
type AddNoteRequest struct {
	RecordPath
	Text string `json:"text"`
}

// Validate checks required fields.
func (r *AddNoteRequest) Validate() error {
	if err := r.RecordPath.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Text) == "" {
		return MissingField("text")
	}
	return nil
}

// Cash

// OpenSessionRequest opens the cash register.
type OpenSessionRequest struct {
	Opening pos.Money `json:"opening"`
}

// Validate checks the amount.
func (r *OpenSessionRequest) Validate() error {
	if r.Opening < 0 {
		return BadRequest("opening must be non-negative")
	}
	return nil
}

// MovementRequest records cash going in or out.
type MovementRequest struct {
	Kind    string    `json:"kind"`
	Amount  pos.Money `json:"amount"`
	Concept string    `json:"concept"`
}

// Validate checks required fields.
func (r *MovementRequest) Validate() error {
	if r.Kind == "" {
		return MissingField("kind")
	}
	if r.Amount <= 0 {
		return BadRequest("amount must be positive")
	}
	return nil
}

// CloseSessionRequest closes the cash register with the counted amount.
type CloseSessionRequest struct {
	Counted pos.Money `json:"counted"`
}

// Validate checks the amount.
func (r *CloseSessionRequest) Validate() error {
	if r.Counted < 0 {
		return BadRequest("counted must be non-negative")
	}
	return nil
}
