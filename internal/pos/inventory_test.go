package pos

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
)

func TestInventory(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	p := mustProduct(t, s, "cable", 1000, map[string]int64{"local": 3})
	mustProduct(t, s, "Adapter", 500, nil)

	t.Run("create validation", func(t *testing.T) {
		tests := []Product{
			{Name: ""},
			{Name: "x", Price: -1},
			{Name: "x", Stock: map[string]int64{"roof": 1}},
			{Name: "x", Stock: map[string]int64{"local": -1}},
			{Name: "x", ID: "a.b"},
		}
		for i, in := range tests {
			if _, err := s.CreateProduct(ctx, in); !errors.Is(err, ErrInvalid) {
				t.Errorf("%d: err = %v", i, err)
			}
		}
	})

	t.Run("list by name", func(t *testing.T) {
		all, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[0].Name != "Adapter" {
			t.Errorf("ListProducts() = %v", all)
		}
	})

	t.Run("adjust stock", func(t *testing.T) {
		n, err := s.AdjustStock(ctx, p.Ref(), "deposito", 4)
		if err != nil {
			t.Fatal(err)
		}
		if n != 4 {
			t.Errorf("deposito = %d", n)
		}
		var ise *InsufficientStockError
		if _, err := s.AdjustStock(ctx, p.Ref(), "local", -4); !errors.As(err, &ise) || ise.Available != 3 {
			t.Errorf("err = %v", err)
		}
		if got := stockOf(t, s, p.Ref(), "local"); got != 3 {
			t.Errorf("local = %d after rejected adjustment", got)
		}
		if n, err := s.AdjustStock(ctx, p.Ref(), "local", -3); err != nil || n != 0 {
			t.Errorf("AdjustStock = %d, %v", n, err)
		}
		if _, err := s.AdjustStock(ctx, p.Ref(), "roof", 1); !errors.Is(err, ErrInvalid) {
			t.Errorf("unknown location err = %v", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		got, err := s.UpdateProduct(ctx, p.Ref(), ProductUpdate{Name: ptr("Cable USB"), Price: ptr(Money(1200)), MinStock: ptr(int64(5))})
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Cable USB" || got.Price != 1200 || got.Stock["deposito"] != 4 || got.Ref() != p.Ref() {
			t.Errorf("product = %+v", got)
		}
		if _, err := s.UpdateProduct(ctx, p.Ref(), ProductUpdate{}); !errors.Is(err, ErrInvalid) {
			t.Errorf("empty update err = %v", err)
		}
		low, err := s.LowStock(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(low) != 1 || low[0].ID != p.ID {
			t.Errorf("LowStock() = %v", low)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.DeleteProduct(ctx, p.Ref()); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetProduct(ctx, p.Ref()); !errors.Is(err, chunk.ErrNotFound) {
			t.Errorf("err = %v", err)
		}
		if _, err := s.AdjustStock(ctx, p.Ref(), "local", 1); !errors.Is(err, chunk.ErrNotFound) {
			t.Errorf("adjust deleted err = %v", err)
		}
	})
}

func TestImportProducts(t *testing.T) {
	store := docstore.NewMemStore()
	s := NewService(store, Options{})
	ctx := t.Context()
	products := make([]Product, 450)
	for i := range products {
		products[i] = Product{ID: fmt.Sprintf("P%04d", i), Name: fmt.Sprint("Product ", i), Price: 100, Stock: map[string]int64{"local": 1}}
	}
	res, err := s.ImportProducts(ctx, products)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 450 || res.Chunks < 3 {
		t.Errorf("res = %+v", res)
	}
	docs, err := store.List(ctx, "products")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) < 3 {
		t.Errorf("%d chunk documents, want at least 3", len(docs))
	}
	before, err := s.Products.Find(ctx, "P0007")
	if err != nil {
		t.Fatal(err)
	}

	res, err = s.ImportProducts(ctx, []Product{{ID: "P0007", Name: "Renamed", Price: 300, Stock: map[string]int64{"deposito": 9}}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Updated != 1 {
		t.Errorf("res = %+v", res)
	}
	rec, err := s.Products.Find(ctx, "P0007")
	if err != nil {
		t.Fatal(err)
	}
	p, err := decode[Product](rec)
	if err != nil {
		t.Fatal(err)
	}
	if p.ChunkDoc != before.ChunkDoc() || p.Name != "Renamed" || p.Price != 300 {
		t.Errorf("product = %+v", p)
	}
	if p.Stock["local"] != 1 || p.Stock["deposito"] != 9 {
		t.Errorf("stock = %v", p.Stock)
	}
	if !p.Created.Equal(before.Created()) {
		t.Errorf("createdAt changed from %v to %v", before.Created(), p.Created)
	}
	all, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 450 {
		t.Errorf("%d products, want 450", len(all))
	}

	if _, err := s.ImportProducts(ctx, []Product{{Name: ""}}); !errors.Is(err, ErrInvalid) {
		t.Errorf("invalid import err = %v", err)
	}
}

func TestCatalog(t *testing.T) {
	const src = `
products:
  - id: CAB-USB-C
    name: Cable USB-C 1m
    cost: 1500
    price: 4500.5
    minStock: 3
    stock: {local: 10, deposito: 40}
  - name: Funda
    price: "2000.00"
clients:
  - name: Ana Pérez
    phone: 11 5555-0101
  - name: Ana Pérez
    phone: "1155550101"
`
	c, err := ParseCatalog(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Products) != 2 || c.Products[0].Price != 450050 || c.Products[1].Price != 200000 {
		t.Fatalf("catalog = %+v", c.Products)
	}

	s, _ := newTestService(t, nil)
	res, err := s.ImportCatalog(t.Context(), c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Products.Created != 2 || res.Clients != 1 {
		t.Errorf("res = %+v", res)
	}
	res, err = s.ImportCatalog(t.Context(), c)
	if err != nil {
		t.Fatal(err)
	}
	// Products without id cannot be matched and are created again.
	if res.Products.Updated != 1 || res.Products.Created != 1 || res.Clients != 0 {
		t.Errorf("second import = %+v", res)
	}

	for _, bad := range []string{
		"products:\n  - name: x\n    colour: red\n",
		"products:\n  - name: x\n    price: 1.234\n",
		"products: [",
	} {
		if _, err := ParseCatalog(strings.NewReader(bad)); err == nil {
			t.Errorf("ParseCatalog(%q) succeeded", bad)
		}
	}
	if c, err := ParseCatalog(strings.NewReader("")); err != nil || len(c.Products) != 0 {
		t.Errorf("empty catalog = %v, %v", c, err)
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   string
		want Money
		ok   bool
	}{
		{"0", 0, true},
		{"12", 1200, true},
		{"12.5", 1250, true},
		{"12.05", 1205, true},
		{"-3.10", -310, true},
		{"1.", 0, false},
		{".5", 0, false},
		{"1.234", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMoney(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseMoney(%q) = %d, %v", tt.in, got, err)
		}
	}
	if got := Money(-1205).String(); got != "-12.05" {
		t.Errorf("String() = %q", got)
	}
}
