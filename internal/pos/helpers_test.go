package pos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
	"github.com/maruel/tallerdb/internal/identity"
)

// clock advances one second on every reading so records sort deterministically.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	admin   = Viewer{ID: "u-admin", Name: "Admin", Perms: identity.Permissions{identity.PermAdmin}}
	seller1 = Viewer{ID: "u-s1", Name: "Sol", Perms: identity.Permissions{identity.PermSales, identity.PermCash}}
	seller2 = Viewer{ID: "u-s2", Name: "Leo", Perms: identity.Permissions{identity.PermSales}}
	auditor = Viewer{ID: "u-aud", Name: "Ana", Perms: identity.Permissions{identity.PermSalesAll}}
	tech    = Viewer{ID: "u-tech", Name: "Tomi", Perms: identity.Permissions{identity.PermWorkshop}}
)

// smallLayouts packs two products per chunk to exercise multi-chunk paths.
func smallLayouts() Layouts {
	l := DefaultLayouts()
	l.Products.Capacity = 2
	return l
}

func newTestService(t *testing.T, store docstore.Store) (*Service, *clock) {
	t.Helper()
	if store == nil {
		ms := docstore.NewMemStore()
		t.Cleanup(func() { _ = ms.Close() })
		store = ms
	}
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewService(store, Options{Layouts: smallLayouts(), Now: c.Now}), c
}

func mustProduct(t *testing.T, s *Service, name string, price Money, stock map[string]int64) *Product {
	t.Helper()
	p, err := s.CreateProduct(t.Context(), Product{Name: name, Price: price, Cost: price / 2, Stock: stock})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", name, err)
	}
	return p
}

func stockOf(t *testing.T, s *Service, ref chunk.Ref, loc string) int64 {
	t.Helper()
	p, err := s.GetProduct(t.Context(), ref)
	if err != nil {
		t.Fatal(err)
	}
	return p.Stock[loc]
}

// frozenList serves List from a snapshot taken at creation, so reads that
// precede a transaction can be made stale.
type frozenList struct {
	docstore.Store
	snap map[string][]*docstore.Document
}

func freeze(t *testing.T, s docstore.Store, colls ...string) *frozenList {
	t.Helper()
	f := &frozenList{Store: s, snap: map[string][]*docstore.Document{}}
	for _, c := range colls {
		docs, err := s.List(t.Context(), c)
		if err != nil {
			t.Fatal(err)
		}
		f.snap[c] = docs
	}
	return f
}

func (f *frozenList) List(ctx context.Context, coll string) ([]*docstore.Document, error) {
	if docs, ok := f.snap[coll]; ok {
		out := make([]*docstore.Document, len(docs))
		for i, d := range docs {
			out[i] = d.Clone()
		}
		return out, nil
	}
	return f.Store.List(ctx, coll)
}

func ptr[T any](v T) *T {
	return &v
}
