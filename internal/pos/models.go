package pos

import (
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
)

// Product is an inventory item. Stock is kept per location.
type Product struct {
	ID       string           `json:"id"`
	ChunkDoc string           `json:"chunkDoc,omitempty"`
	Name     string           `json:"name"`
	Code     string           `json:"code,omitempty"`
	Category string           `json:"category,omitempty"`
	Brand    string           `json:"brand,omitempty"`
	Cost     Money            `json:"cost"`
	Price    Money            `json:"price"`
	Stock    map[string]int64 `json:"stock"`
	MinStock int64            `json:"minStock,omitempty"`
	Created  time.Time        `json:"createdAt"`
	Updated  time.Time        `json:"updatedAt,omitzero"`
}

// TotalStock sums the stock of every location.
func (p *Product) TotalStock() int64 {
	var n int64
	for _, v := range p.Stock {
		n += v
	}
	return n
}

// Ref returns the product address.
func (p *Product) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: p.ChunkDoc, ID: p.ID}
}

// Payment methods.
const (
	PayCash     = "efectivo"
	PayCard     = "tarjeta"
	PayTransfer = "transferencia"
	PayOther    = "otro"
)

var paymentMethods = []string{PayCash, PayCard, PayTransfer, PayOther}

// Sale statuses.
const (
	SaleCompleted = "completada"
	SaleVoided    = "anulada"
)

// Line is one item of a sale or budget. Lines without ProductID are services
// and do not move stock.
type Line struct {
	ProductID string `json:"productId,omitempty"`
	ChunkDoc  string `json:"productChunk,omitempty"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice Money  `json:"unitPrice"`
	Subtotal  Money  `json:"subtotal"`
}

// Sale is a completed checkout.
type Sale struct {
	ID            string    `json:"id"`
	ChunkDoc      string    `json:"chunkDoc,omitempty"`
	Lines         []Line    `json:"lines"`
	Location      string    `json:"location"`
	PaymentMethod string    `json:"paymentMethod"`
	ClientID      string    `json:"clientId,omitempty"`
	ClientName    string    `json:"clientName,omitempty"`
	SellerID      string    `json:"sellerId"`
	SellerName    string    `json:"sellerName,omitempty"`
	BudgetID      string    `json:"budgetId,omitempty"`
	Discount      Money     `json:"discount,omitempty"`
	Total         Money     `json:"total"`
	Status        string    `json:"status"`
	Created       time.Time `json:"createdAt"`
	Updated       time.Time `json:"updatedAt,omitzero"`
	Deleted       time.Time `json:"deletedAt,omitzero"`
}

// Ref returns the sale address.
func (s *Sale) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: s.ChunkDoc, ID: s.ID}
}

// Budget statuses.
const (
	BudgetPending  = "pendiente"
	BudgetApproved = "aprobado"
	BudgetRejected = "rechazado"
	BudgetSold     = "vendido"
)

// Budget is a quote given to a client.
type Budget struct {
	ID         string    `json:"id"`
	ChunkDoc   string    `json:"chunkDoc,omitempty"`
	Lines      []Line    `json:"lines"`
	ClientID   string    `json:"clientId,omitempty"`
	ClientName string    `json:"clientName,omitempty"`
	SellerID   string    `json:"sellerId"`
	SellerName string    `json:"sellerName,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Total      Money     `json:"total"`
	ValidDays  int       `json:"validDays"`
	ValidUntil time.Time `json:"validUntil"`
	Status     string    `json:"status"`
	SaleID     string    `json:"saleId,omitempty"`
	Created    time.Time `json:"createdAt"`
	Updated    time.Time `json:"updatedAt,omitzero"`
}

// Ref returns the budget address.
func (b *Budget) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: b.ChunkDoc, ID: b.ID}
}

// Client is a customer.
type Client struct {
	ID       string    `json:"id"`
	ChunkDoc string    `json:"chunkDoc,omitempty"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone,omitempty"`
	Email    string    `json:"email,omitempty"`
	TaxID    string    `json:"taxId,omitempty"`
	Address  string    `json:"address,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Created  time.Time `json:"createdAt"`
	Updated  time.Time `json:"updatedAt,omitzero"`
}

// Ref returns the client address.
func (c *Client) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: c.ChunkDoc, ID: c.ID}
}

// Job statuses.
const (
	JobReceived  = "recibido"
	JobRepairing = "en_reparacion"
	JobReady     = "listo"
	JobDelivered = "entregado"
	JobCancelled = "cancelado"
)

// jobTransitions lists the statuses reachable from each status.
var jobTransitions = map[string][]string{
	JobReceived:  {JobRepairing, JobCancelled},
	JobRepairing: {JobReady, JobCancelled},
	JobReady:     {JobDelivered, JobRepairing, JobCancelled},
}

// Job is a device left at the workshop.
type Job struct {
	ID             string    `json:"id"`
	ChunkDoc       string    `json:"chunkDoc,omitempty"`
	ClientID       string    `json:"clientId,omitempty"`
	ClientName     string    `json:"clientName"`
	ClientPhone    string    `json:"clientPhone,omitempty"`
	Device         string    `json:"device"`
	Problem        string    `json:"problem"`
	TechnicianID   string    `json:"technicianId,omitempty"`
	TechnicianName string    `json:"technicianName,omitempty"`
	Estimate       Money     `json:"estimate,omitempty"`
	Status         string    `json:"status"`
	Notes          []JobNote `json:"notes,omitempty"`
	Created        time.Time `json:"createdAt"`
	Updated        time.Time `json:"updatedAt,omitzero"`
	Delivered      time.Time `json:"deliveredAt,omitzero"`
}

// Ref returns the job address.
func (j *Job) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: j.ChunkDoc, ID: j.ID}
}

// JobNote is a timestamped remark on a job.
type JobNote struct {
	At       time.Time `json:"at"`
	AuthorID string    `json:"authorId"`
	Author   string    `json:"author,omitempty"`
	Text     string    `json:"text"`
}

// Cash register entry kinds.
const (
	CashSession = "sesion"
	CashIncome  = "ingreso"
	CashExpense = "egreso"
)

// Cash session statuses.
const (
	SessionOpen   = "abierta"
	SessionClosed = "cerrada"
)

// CashEntry is a register session or a manual movement inside one.
type CashEntry struct {
	ID        string    `json:"id"`
	ChunkDoc  string    `json:"chunkDoc,omitempty"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	Amount    Money     `json:"amount"`
	Concept   string    `json:"concept,omitempty"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Status    string    `json:"status,omitempty"`
	Counted   Money     `json:"counted,omitempty"`
	Expected  Money     `json:"expected,omitempty"`
	Created   time.Time `json:"createdAt"`
	Closed    time.Time `json:"closedAt,omitzero"`
}

// Ref returns the entry address.
func (e *CashEntry) Ref() chunk.Ref {
	return chunk.Ref{ChunkDoc: e.ChunkDoc, ID: e.ID}
}

// decode converts a record into T.
func decode[T any](rec chunk.Record) (*T, error) {
	var v T
	if err := rec.Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeAll converts records into T, skipping nothing.
func decodeAll[T any](recs []chunk.Record) ([]*T, error) {
	out := make([]*T, 0, len(recs))
	for _, r := range recs {
		v, err := decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// encode converts v into a record.
func encode(v any) (chunk.Record, error) {
	m, err := docstore.Encode(v)
	if err != nil {
		return nil, err
	}
	return chunk.Record(m), nil
}
