package pos

import (
	"errors"
	"sync"
	"testing"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
)

func TestCheckout(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	cable := mustProduct(t, s, "Cable", 1000, map[string]int64{"local": 5})
	charger := mustProduct(t, s, "Charger", 5000, map[string]int64{"local": 2, "deposito": 10})
	glass := mustProduct(t, s, "Glass", 2000, map[string]int64{"local": 1})
	if cable.ChunkDoc == glass.ChunkDoc {
		t.Fatalf("expected products in several chunks, got %s and %s", cable.ChunkDoc, glass.ChunkDoc)
	}

	t.Run("success", func(t *testing.T) {
		sale, err := s.Checkout(ctx, seller1, CheckoutInput{
			Lines: []LineInput{
				{ProductID: cable.ID, Quantity: 2},
				{ProductID: glass.ID, ChunkDoc: glass.ChunkDoc, Quantity: 1},
				{Name: "Colocación", Quantity: 1, UnitPrice: ptr(Money(1500))},
			},
			Discount: 500,
		})
		if err != nil {
			t.Fatal(err)
		}
		if sale.Total != 2*1000+2000+1500-500 {
			t.Errorf("Total = %d", sale.Total)
		}
		if sale.Location != "local" || sale.PaymentMethod != PayCash || sale.Status != SaleCompleted || sale.SellerID != seller1.ID {
			t.Errorf("sale = %+v", sale)
		}
		if sale.ChunkDoc == "" || sale.ID == "" {
			t.Errorf("sale ref missing: %+v", sale.Ref())
		}
		if got := stockOf(t, s, cable.Ref(), "local"); got != 3 {
			t.Errorf("cable stock = %d, want 3", got)
		}
		if got := stockOf(t, s, glass.Ref(), "local"); got != 0 {
			t.Errorf("glass stock = %d, want 0", got)
		}
	})

	t.Run("insufficient stock rejects the whole sale", func(t *testing.T) {
		_, err := s.Checkout(ctx, seller1, CheckoutInput{Lines: []LineInput{
			{ProductID: cable.ID, Quantity: 1},
			{ProductID: charger.ID, Quantity: 2},
			{ProductID: charger.ID, Quantity: 1},
		}})
		var ise *InsufficientStockError
		if !errors.As(err, &ise) {
			t.Fatalf("err = %v, want InsufficientStockError", err)
		}
		if ise.ProductID != charger.ID || ise.Name != "Charger" || ise.Available != 2 || ise.Requested != 3 {
			t.Errorf("err = %+v", ise)
		}
		if got := stockOf(t, s, cable.Ref(), "local"); got != 3 {
			t.Errorf("cable stock = %d, want unchanged 3", got)
		}
	})

	t.Run("other location", func(t *testing.T) {
		if _, err := s.Checkout(ctx, seller1, CheckoutInput{Location: "deposito", PaymentMethod: PayCard, Lines: []LineInput{{ProductID: charger.ID, Quantity: 3}}}); err != nil {
			t.Fatal(err)
		}
		if got := stockOf(t, s, charger.Ref(), "deposito"); got != 7 {
			t.Errorf("deposito stock = %d", got)
		}
		if got := stockOf(t, s, charger.Ref(), "local"); got != 2 {
			t.Errorf("local stock = %d", got)
		}
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			in   CheckoutInput
			want error
		}{
			{"no lines", CheckoutInput{}, ErrInvalid},
			{"zero quantity", CheckoutInput{Lines: []LineInput{{ProductID: cable.ID}}}, ErrInvalid},
			{"unknown location", CheckoutInput{Location: "roof", Lines: []LineInput{{ProductID: cable.ID, Quantity: 1}}}, ErrInvalid},
			{"unknown payment", CheckoutInput{PaymentMethod: "gold", Lines: []LineInput{{ProductID: cable.ID, Quantity: 1}}}, ErrInvalid},
			{"service without price", CheckoutInput{Lines: []LineInput{{Name: "x", Quantity: 1}}}, ErrInvalid},
			{"unknown product", CheckoutInput{Lines: []LineInput{{ProductID: "nope", Quantity: 1}}}, chunk.ErrNotFound},
			{"wrong chunk", CheckoutInput{Lines: []LineInput{{ProductID: cable.ID, ChunkDoc: "9999", Quantity: 1}}}, chunk.ErrNotFound},
			{"discount too large", CheckoutInput{Discount: 5000, Lines: []LineInput{{ProductID: cable.ID, Quantity: 1}}}, ErrInvalid},
			{"unknown client", CheckoutInput{ClientID: "nope", Lines: []LineInput{{ProductID: cable.ID, Quantity: 1}}}, chunk.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := s.Checkout(ctx, seller1, tt.in); !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
			})
		}
		if got := stockOf(t, s, cable.Ref(), "local"); got != 3 {
			t.Errorf("cable stock = %d, want unchanged 3", got)
		}
	})
}

func TestCheckoutConcurrent(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	cable := mustProduct(t, s, "Cable", 1000, map[string]int64{"local": 10})
	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		v := seller1
		if i%2 == 1 {
			v = seller2
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Checkout(ctx, v, CheckoutInput{Lines: []LineInput{{ProductID: cable.ID, ChunkDoc: cable.ChunkDoc, Quantity: 1}}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	sold := 0
	for err := range errs {
		var ise *InsufficientStockError
		switch {
		case err == nil:
			sold++
		case errors.As(err, &ise), errors.Is(err, docstore.ErrConflict), errors.Is(err, chunk.ErrChunksFull):
		default:
			t.Errorf("Checkout: %v", err)
		}
	}
	left := stockOf(t, s, cable.Ref(), "local")
	if left < 0 || int64(sold)+left != 10 {
		t.Errorf("sold %d, %d left in stock", sold, left)
	}
	if sold == 0 {
		t.Error("no checkout succeeded")
	}
	sales, err := s.ListSales(ctx, admin, SaleFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != sold {
		t.Errorf("%d sales stored, %d checkouts succeeded", len(sales), sold)
	}
}

func TestCheckoutCompensates(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	a := mustProduct(t, s, "A", 100, map[string]int64{"local": 5})
	mustProduct(t, s, "A2", 100, nil)
	b := mustProduct(t, s, "B", 100, map[string]int64{"local": 5})
	if a.ChunkDoc == b.ChunkDoc {
		t.Fatal("products share a chunk")
	}
	// The checkout validates against a snapshot where B still has 5, but
	// another sale takes B's stock before the transactions run.
	stale := NewService(freeze(t, s.Products.Store(), s.Products.Layout().Collection), Options{Layouts: smallLayouts()})
	if _, err := s.AdjustStock(ctx, b.Ref(), "local", -4); err != nil {
		t.Fatal(err)
	}
	_, err := stale.Checkout(ctx, seller1, CheckoutInput{Lines: []LineInput{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 3}}})
	var ise *InsufficientStockError
	if !errors.As(err, &ise) || ise.ProductID != b.ID || ise.Available != 1 {
		t.Fatalf("err = %v", err)
	}
	if got := stockOf(t, s, a.Ref(), "local"); got != 5 {
		t.Errorf("A stock = %d, want 5 after compensation", got)
	}
	sales, err := s.ListSales(ctx, admin, SaleFilter{IncludeVoided: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 0 {
		t.Errorf("%d sales recorded", len(sales))
	}
}

func TestVoidAndDeleteSale(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	p := mustProduct(t, s, "Cable", 1000, map[string]int64{"local": 5})
	sale, err := s.Checkout(ctx, seller1, CheckoutInput{Lines: []LineInput{{ProductID: p.ID, Quantity: 3}}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.VoidSale(ctx, seller2, sale.Ref()); !errors.Is(err, ErrForbidden) {
		t.Errorf("void by other seller err = %v", err)
	}
	voided, err := s.VoidSale(ctx, seller1, sale.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if voided.Status != SaleVoided || voided.Deleted.IsZero() || voided.Ref() != sale.Ref() {
		t.Errorf("voided = %+v", voided)
	}
	if got := stockOf(t, s, p.Ref(), "local"); got != 5 {
		t.Errorf("stock = %d, want 5 after void", got)
	}
	if _, err := s.VoidSale(ctx, seller1, sale.Ref()); !errors.Is(err, ErrTransition) {
		t.Errorf("second void err = %v", err)
	}
	if got := stockOf(t, s, p.Ref(), "local"); got != 5 {
		t.Errorf("stock = %d after second void", got)
	}

	list, err := s.ListSales(ctx, seller1, SaleFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("voided sale listed by default")
	}
	list, err = s.ListSales(ctx, seller1, SaleFilter{IncludeVoided: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("voided sale not preserved: %v", list)
	}

	if err := s.DeleteSale(ctx, admin, sale.Ref()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSale(ctx, admin, sale.Ref()); !errors.Is(err, chunk.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	list, err = s.ListSales(ctx, admin, SaleFilter{IncludeVoided: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("deleted sale still listed")
	}
}

func TestSalesVisibility(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	p := mustProduct(t, s, "Cable", 1000, map[string]int64{"local": 50})
	var ids []string
	for _, v := range []Viewer{seller1, seller2, seller1} {
		sale, err := s.Checkout(ctx, v, CheckoutInput{Lines: []LineInput{{ProductID: p.ID, Quantity: 1}}})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, sale.ID)
	}
	tests := []struct {
		v    Viewer
		want []string
	}{
		{seller1, []string{ids[2], ids[0]}},
		{seller2, []string{ids[1]}},
		{admin, []string{ids[2], ids[1], ids[0]}},
		{auditor, []string{ids[2], ids[1], ids[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.v.Name, func(t *testing.T) {
			sales, err := s.ListSales(ctx, tt.v, SaleFilter{})
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, sale := range sales {
				got = append(got, sale.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}
