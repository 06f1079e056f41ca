package pos

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
)

// DefaultValidDays is the validity of a budget when none is given.
const DefaultValidDays = 15

// BudgetInput is a quote to create.
type BudgetInput struct {
	Lines      []LineInput `json:"lines"`
	ClientID   string      `json:"clientId,omitempty"`
	ClientName string      `json:"clientName,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	ValidDays  int         `json:"validDays,omitempty"`
}

// CreateBudget prices the lines against the current catalogue and stores a
// pending budget. Stock is not checked.
func (s *Service) CreateBudget(ctx context.Context, v Viewer, in BudgetInput) (*Budget, error) {
	if in.ValidDays < 0 {
		return nil, invalid("validity must not be negative")
	}
	if in.ValidDays == 0 {
		in.ValidDays = DefaultValidDays
	}
	lines, _, total, err := s.priceLines(ctx, in.Lines, "")
	if err != nil {
		return nil, err
	}
	now := s.stamp()
	b := Budget{
		Lines:      lines,
		ClientName: strings.TrimSpace(in.ClientName),
		SellerID:   v.ID,
		SellerName: v.Name,
		Notes:      strings.TrimSpace(in.Notes),
		Total:      total,
		ValidDays:  in.ValidDays,
		ValidUntil: now.AddDate(0, 0, in.ValidDays),
		Status:     BudgetPending,
		Created:    now,
	}
	if in.ClientID != "" {
		c, err := s.Clients.Find(ctx, in.ClientID)
		if err != nil {
			return nil, err
		}
		b.ClientID = c.ID()
		b.ClientName = c.String("name")
	}
	rec, err := encode(&b)
	if err != nil {
		return nil, err
	}
	delete(rec, chunk.FieldChunkDoc)
	delete(rec, chunk.FieldID)
	if rec, err = s.Budgets.AppendTx(ctx, rec); err != nil {
		return nil, err
	}
	return decode[Budget](rec)
}

// GetBudget returns the budget at ref.
func (s *Service) GetBudget(ctx context.Context, ref chunk.Ref) (*Budget, error) {
	rec, err := s.Budgets.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return decode[Budget](rec)
}

// ListBudgets returns budgets most recent first, optionally only one status.
func (s *Service) ListBudgets(ctx context.Context, status string) ([]*Budget, error) {
	recs, err := s.Budgets.List(ctx, chunk.NewestFirst)
	if err != nil {
		return nil, err
	}
	all, err := decodeAll[Budget](recs)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	out := all[:0]
	for _, b := range all {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

// SetBudgetStatus approves or rejects a pending budget. An expired budget
// cannot be approved.
func (s *Service) SetBudgetStatus(ctx context.Context, ref chunk.Ref, status string) (*Budget, error) {
	if status != BudgetApproved && status != BudgetRejected {
		return nil, invalid("budget status must be %s or %s", BudgetApproved, BudgetRejected)
	}
	now := s.stamp()
	err := s.Budgets.Mutate(ctx, ref, func(rec chunk.Record) (map[string]any, error) {
		b, err := decode[Budget](rec)
		if err != nil {
			return nil, err
		}
		if b.Status != BudgetPending {
			return nil, fmt.Errorf("%w: budget %s is %s", ErrTransition, ref, b.Status)
		}
		if status == BudgetApproved && now.After(b.ValidUntil) {
			return nil, fmt.Errorf("%w: budget %s expired on %s", ErrTransition, ref, b.ValidUntil.Format(time.DateOnly))
		}
		return map[string]any{chunk.FieldStatus: status, chunk.FieldUpdatedAt: chunk.Timestamp(now)}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBudget(ctx, ref)
}

// ConvertInput completes a budget conversion.
type ConvertInput struct {
	Location      string `json:"location,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

// ConvertBudget checks out an approved budget at its quoted prices and marks
// it sold.
func (s *Service) ConvertBudget(ctx context.Context, v Viewer, ref chunk.Ref, in ConvertInput) (*Sale, error) {
	b, err := s.GetBudget(ctx, ref)
	if err != nil {
		return nil, err
	}
	if b.Status != BudgetApproved {
		return nil, fmt.Errorf("%w: budget %s is %s", ErrTransition, ref, b.Status)
	}
	co := CheckoutInput{
		Location:      in.Location,
		PaymentMethod: in.PaymentMethod,
		ClientID:      b.ClientID,
		budgetID:      b.ID,
	}
	for _, l := range b.Lines {
		price := l.UnitPrice
		co.Lines = append(co.Lines, LineInput{ProductID: l.ProductID, ChunkDoc: l.ChunkDoc, Name: l.Name, Quantity: l.Quantity, UnitPrice: &price})
	}
	sale, err := s.Checkout(ctx, v, co)
	if err != nil {
		return nil, err
	}
	now := chunk.Timestamp(s.stamp())
	err = s.Budgets.Mutate(ctx, ref, func(rec chunk.Record) (map[string]any, error) {
		if st := rec.String(chunk.FieldStatus); st != BudgetApproved {
			return nil, fmt.Errorf("%w: budget %s is %s", ErrTransition, ref, st)
		}
		return map[string]any{chunk.FieldStatus: BudgetSold, "saleId": sale.ID, chunk.FieldUpdatedAt: now}, nil
	})
	if err != nil {
		// Another conversion won the race; undo this sale.
		if _, verr := s.VoidSale(context.WithoutCancel(ctx), v, sale.Ref()); verr != nil {
			slog.ErrorContext(ctx, "Failed to void sale of a failed budget conversion", "sale", sale.ID, "err", verr)
		}
		return nil, err
	}
	return sale, nil
}
