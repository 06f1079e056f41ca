package pos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
)

// CashBalance is the state of a cash session.
type CashBalance struct {
	Session   *CashEntry `json:"session"`
	Opening   Money      `json:"opening"`
	CashSales Money      `json:"cashSales"`
	SaleCount int        `json:"saleCount"`
	Income    Money      `json:"income"`
	Expense   Money      `json:"expense"`
	Balance   Money      `json:"balance"`
}

// ListCash returns every session and movement, most recent first.
func (s *Service) ListCash(ctx context.Context) ([]*CashEntry, error) {
	recs, err := s.Cash.List(ctx, chunk.NewestFirst)
	if err != nil {
		return nil, err
	}
	return decodeAll[CashEntry](recs)
}

// CurrentSession returns the open session or ErrNoSession.
func (s *Service) CurrentSession(ctx context.Context) (*CashEntry, error) {
	all, err := s.ListCash(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.Kind == CashSession && e.Status == SessionOpen {
			return e, nil
		}
	}
	return nil, ErrNoSession
}

func (s *Service) appendCash(ctx context.Context, e *CashEntry) (*CashEntry, error) {
	rec, err := encode(e)
	if err != nil {
		return nil, err
	}
	delete(rec, chunk.FieldChunkDoc)
	delete(rec, chunk.FieldID)
	if rec, err = s.Cash.AppendTx(ctx, rec); err != nil {
		return nil, err
	}
	return decode[CashEntry](rec)
}

// OpenSession opens the register with an opening amount. Only one session
// may be open at a time.
func (s *Service) OpenSession(ctx context.Context, v Viewer, opening Money) (*CashEntry, error) {
	if opening < 0 {
		return nil, invalid("opening amount must not be negative")
	}
	if cur, err := s.CurrentSession(ctx); err == nil {
		return nil, fmt.Errorf("%w since %s", ErrSessionOpen, cur.Created.Format(time.DateTime))
	}
	return s.appendCash(ctx, &CashEntry{
		Kind:     CashSession,
		Amount:   opening,
		UserID:   v.ID,
		UserName: v.Name,
		Status:   SessionOpen,
		Created:  s.stamp(),
	})
}

// AddMovement records a manual income or expense in the open session.
func (s *Service) AddMovement(ctx context.Context, v Viewer, kind string, amount Money, concept string) (*CashEntry, error) {
	if kind != CashIncome && kind != CashExpense {
		return nil, invalid("movement kind must be %s or %s", CashIncome, CashExpense)
	}
	if amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return nil, invalid("concept is required")
	}
	sess, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.appendCash(ctx, &CashEntry{
		Kind:      kind,
		SessionID: sess.ID,
		Amount:    amount,
		Concept:   concept,
		UserID:    v.ID,
		UserName:  v.Name,
		Created:   s.stamp(),
	})
}

// Balance computes opening + cash sales + income - expense for a session.
// Sales count when paid in cash, not voided, and created inside the session
// window, which is still running for an open session.
func (s *Service) Balance(ctx context.Context, ref chunk.Ref) (*CashBalance, error) {
	rec, err := s.Cash.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	sess, err := decode[CashEntry](rec)
	if err != nil {
		return nil, err
	}
	if sess.Kind != CashSession {
		return nil, invalid("%s is not a cash session", ref)
	}
	return s.balance(ctx, sess)
}

func (s *Service) balance(ctx context.Context, sess *CashEntry) (*CashBalance, error) {
	end := sess.Closed
	if sess.Status == SessionOpen || end.IsZero() {
		end = s.stamp()
	}
	b := &CashBalance{Session: sess, Opening: sess.Amount}
	entries, err := s.ListCash(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.SessionID != sess.ID {
			continue
		}
		switch e.Kind {
		case CashIncome:
			b.Income += e.Amount
		case CashExpense:
			b.Expense += e.Amount
		}
	}
	recs, err := s.Sales.List(ctx, chunk.Stored)
	if err != nil {
		return nil, err
	}
	sales, err := decodeAll[Sale](recs)
	if err != nil {
		return nil, err
	}
	for _, sale := range sales {
		if sale.PaymentMethod != PayCash || sale.Status == SaleVoided {
			continue
		}
		if sale.Created.Before(sess.Created) || sale.Created.After(end) {
			continue
		}
		b.CashSales += sale.Total
		b.SaleCount++
	}
	b.Balance = b.Opening + b.CashSales + b.Income - b.Expense
	return b, nil
}

// CurrentBalance returns the balance of the open session.
func (s *Service) CurrentBalance(ctx context.Context) (*CashBalance, error) {
	sess, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.balance(ctx, sess)
}

// CloseSession closes the open session, recording the counted amount next
// to the expected balance.
func (s *Service) CloseSession(ctx context.Context, v Viewer, counted Money) (*CashBalance, error) {
	if counted < 0 {
		return nil, invalid("counted amount must not be negative")
	}
	sess, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	closed := s.stamp()
	sess.Closed = closed
	sess.Status = SessionClosed
	b, err := s.balance(ctx, sess)
	if err != nil {
		return nil, err
	}
	err = s.Cash.Mutate(ctx, sess.Ref(), func(rec chunk.Record) (map[string]any, error) {
		if rec.String(chunk.FieldStatus) != SessionOpen {
			return nil, ErrNoSession
		}
		return map[string]any{
			chunk.FieldStatus: SessionClosed,
			"closedAt":        chunk.Timestamp(closed),
			"counted":         int64(counted),
			"expected":        int64(b.Balance),
			"closedBy":        v.ID,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	b.Session.Counted = counted
	b.Session.Expected = b.Balance
	return b, nil
}
