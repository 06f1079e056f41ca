package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// Layout describes how one entity type is packed.
type Layout struct {
	// Collection is the docstore collection holding the chunk documents.
	Collection string `json:"collection"`
	// Prefix distinguishes record keys, e.g. "p_".
	Prefix string `json:"prefix"`
	// Capacity is the number of records a chunk should hold.
	Capacity int `json:"capacity"`
	// Sequential chunk ids are zero padded counters ("0001"); otherwise ids
	// are generated.
	Sequential bool `json:"sequential"`
}

// Default layouts.
var (
	Products = Layout{Collection: "products", Prefix: "p_", Capacity: 200, Sequential: true}
	Sales    = Layout{Collection: "sales", Prefix: "v_", Capacity: 200, Sequential: true}
	Budgets  = Layout{Collection: "budgets", Prefix: "b_", Capacity: 100, Sequential: true}
	Clients  = Layout{Collection: "clients", Prefix: "c_", Capacity: 200}
	Jobs     = Layout{Collection: "jobs", Prefix: "t_", Capacity: 100}
	Cash     = Layout{Collection: "cash", Prefix: "m_", Capacity: 200, Sequential: true}
)

// Validate checks the layout is usable.
func (l *Layout) Validate() error {
	if l.Collection == "" {
		return errors.New("layout collection is required")
	}
	if l.Prefix == "" || strings.Contains(l.Prefix, ".") {
		return fmt.Errorf("layout %s: invalid prefix %q", l.Collection, l.Prefix)
	}
	if l.Capacity <= 0 {
		return fmt.Errorf("layout %s: capacity must be positive", l.Collection)
	}
	return nil
}

// Key returns the field name of the record id inside a chunk document.
func (l Layout) Key(id string) string {
	return l.Prefix + id
}

// idWidth is the zero padding of sequential chunk ids.
const idWidth = 4

func formatSeq(n int) string {
	return fmt.Sprintf("%0*d", idWidth, n)
}

// parseSeq returns the counter of a sequential chunk id.
func parseSeq(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	n := 0
	for _, c := range id {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
