package pos

import (
	"slices"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
	"github.com/maruel/tallerdb/internal/identity"
)

// DefaultLocations are the stock locations used when none are configured.
var DefaultLocations = []string{"local", "deposito"}

// Layouts holds the packing of every collection.
type Layouts struct {
	Products chunk.Layout `json:"products"`
	Sales    chunk.Layout `json:"sales"`
	Budgets  chunk.Layout `json:"budgets"`
	Clients  chunk.Layout `json:"clients"`
	Jobs     chunk.Layout `json:"jobs"`
	Cash     chunk.Layout `json:"cash"`
}

// DefaultLayouts returns the standard layouts.
func DefaultLayouts() Layouts {
	return Layouts{
		Products: chunk.Products,
		Sales:    chunk.Sales,
		Budgets:  chunk.Budgets,
		Clients:  chunk.Clients,
		Jobs:     chunk.Jobs,
		Cash:     chunk.Cash,
	}
}

// Options configures a Service.
type Options struct {
	Layouts   Layouts
	Locations []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the business layer.
type Service struct {
	Products *chunk.Collection
	Sales    *chunk.Collection
	Budgets  *chunk.Collection
	Clients  *chunk.Collection
	Jobs     *chunk.Collection
	Cash     *chunk.Collection

	locations []string
	now       func() time.Time
}

// NewService builds a Service over store. Zero option fields get defaults.
func NewService(store docstore.Store, opts Options) *Service {
	def := DefaultLayouts()
	pick := func(l, d chunk.Layout) chunk.Layout {
		if l.Collection == "" {
			return d
		}
		return l
	}
	s := &Service{
		Products:  chunk.New(store, pick(opts.Layouts.Products, def.Products)),
		Sales:     chunk.New(store, pick(opts.Layouts.Sales, def.Sales)),
		Budgets:   chunk.New(store, pick(opts.Layouts.Budgets, def.Budgets)),
		Clients:   chunk.New(store, pick(opts.Layouts.Clients, def.Clients)),
		Jobs:      chunk.New(store, pick(opts.Layouts.Jobs, def.Jobs)),
		Cash:      chunk.New(store, pick(opts.Layouts.Cash, def.Cash)),
		locations: slices.Clone(opts.Locations),
		now:       opts.Now,
	}
	if len(s.locations) == 0 {
		s.locations = slices.Clone(DefaultLocations)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Locations returns the configured stock locations.
func (s *Service) Locations() []string {
	return slices.Clone(s.locations)
}

// Collection returns the collection of the given name, or nil.
func (s *Service) Collection(name string) *chunk.Collection {
	for _, c := range []*chunk.Collection{s.Products, s.Sales, s.Budgets, s.Clients, s.Jobs, s.Cash} {
		if c.Layout().Collection == name {
			return c
		}
	}
	return nil
}

func (s *Service) location(loc string) (string, error) {
	if loc == "" {
		return s.locations[0], nil
	}
	if !slices.Contains(s.locations, loc) {
		return "", invalid("unknown location %q", loc)
	}
	return loc, nil
}

func (s *Service) stamp() time.Time {
	return s.now().UTC()
}

// Viewer is the user on whose behalf an operation runs.
type Viewer struct {
	ID    string
	Name  string
	Perms identity.Permissions
}

// SeesAllSales reports whether v sees every seller's sales.
func (v Viewer) SeesAllSales() bool {
	return v.Perms.Has(identity.PermSalesAll)
}

// SeesAllJobs reports whether v sees jobs assigned to others.
func (v Viewer) SeesAllJobs() bool {
	return v.Perms.HasExact(identity.PermAdmin)
}
