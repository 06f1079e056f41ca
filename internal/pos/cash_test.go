package pos

import (
	"errors"
	"testing"
)

func TestCash(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	p := mustProduct(t, s, "Cable", 1000, map[string]int64{"local": 100})
	sell := func(t *testing.T, pay string, qty int64) *Sale {
		t.Helper()
		sale, err := s.Checkout(ctx, seller1, CheckoutInput{PaymentMethod: pay, Lines: []LineInput{{ProductID: p.ID, Quantity: qty}}})
		if err != nil {
			t.Fatal(err)
		}
		return sale
	}

	if _, err := s.CurrentSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("CurrentSession() err = %v", err)
	}
	if _, err := s.AddMovement(ctx, seller1, CashIncome, 100, "x"); !errors.Is(err, ErrNoSession) {
		t.Errorf("movement without session err = %v", err)
	}
	// Before the session: not counted.
	sell(t, PayCash, 1)

	sess, err := s.OpenSession(ctx, seller1, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != SessionOpen || sess.Amount != 5000 {
		t.Errorf("session = %+v", sess)
	}
	if _, err := s.OpenSession(ctx, seller1, 0); !errors.Is(err, ErrSessionOpen) {
		t.Errorf("second open err = %v", err)
	}

	sell(t, PayCash, 2)
	sell(t, PayCard, 3)
	voided := sell(t, PayCash, 4)
	if _, err := s.VoidSale(ctx, seller1, voided.Ref()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMovement(ctx, seller1, CashIncome, 700, "Cambio"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMovement(ctx, seller1, CashExpense, 1200, "Limpieza"); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []struct {
		kind    string
		amount  Money
		concept string
	}{
		{"regalo", 1, "x"},
		{CashIncome, 0, "x"},
		{CashIncome, 1, ""},
	} {
		if _, err := s.AddMovement(ctx, seller1, bad.kind, bad.amount, bad.concept); !errors.Is(err, ErrInvalid) {
			t.Errorf("AddMovement(%+v) err = %v", bad, err)
		}
	}

	b, err := s.CurrentBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b.Opening != 5000 || b.CashSales != 2000 || b.SaleCount != 1 || b.Income != 700 || b.Expense != 1200 {
		t.Errorf("balance = %+v", b)
	}
	if b.Balance != 5000+2000+700-1200 {
		t.Errorf("Balance = %d", b.Balance)
	}

	closed, err := s.CloseSession(ctx, seller1, 6400)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Balance != 6500 || closed.Session.Counted != 6400 || closed.Session.Expected != 6500 {
		t.Errorf("closed = %+v", closed.Session)
	}
	if _, err := s.CurrentSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("session still open: %v", err)
	}
	if _, err := s.CloseSession(ctx, seller1, 0); !errors.Is(err, ErrNoSession) {
		t.Errorf("second close err = %v", err)
	}

	// Sales after closing do not change the closed session.
	sell(t, PayCash, 5)
	again, err := s.Balance(ctx, sess.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if again.Balance != 6500 || again.Session.Status != SessionClosed {
		t.Errorf("closed balance = %+v", again)
	}

	entries, err := s.ListCash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[2].Kind != CashSession {
		t.Errorf("entries = %+v", entries)
	}
}
