package pos

import (
	"errors"
	"testing"

	"github.com/maruel/tallerdb/internal/chunk"
)

func TestClients(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	for _, c := range []Client{
		{Name: "Zoe Díaz", Phone: "+54 11 4444-1234"},
		{Name: "ana Pérez", Phone: "11 5555-0101"},
		{Name: "Bruno", Phone: ""},
	} {
		if _, err := s.CreateClient(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.CreateClient(ctx, Client{Name: "  "}); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank name err = %v", err)
	}

	all, err := s.ListClients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "ana Pérez" || all[2].Name != "Zoe Díaz" {
		t.Errorf("ListClients() not sorted by name: %v", all)
	}

	tests := []struct {
		q    string
		want int
	}{
		{"", 3},
		{"ANA", 1},
		{"4444", 1},
		{"5555 01", 1},
		{"11", 2},
		{"nobody", 0},
	}
	for _, tt := range tests {
		t.Run("search "+tt.q, func(t *testing.T) {
			got, err := s.SearchClients(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("SearchClients(%q) = %d results, want %d", tt.q, len(got), tt.want)
			}
		})
	}

	bruno := all[1]
	updated, err := s.UpdateClient(ctx, bruno.Ref(), ClientUpdate{Phone: ptr("221 333-4444")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Phone != "221 333-4444" || updated.Name != "Bruno" || updated.Updated.IsZero() {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := s.UpdateClient(ctx, bruno.Ref(), ClientUpdate{Name: ptr("")}); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank rename err = %v", err)
	}
	if err := s.DeleteClient(ctx, bruno.Ref()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetClient(ctx, bruno.Ref()); !errors.Is(err, chunk.ErrNotFound) {
		t.Errorf("get deleted err = %v", err)
	}
}
