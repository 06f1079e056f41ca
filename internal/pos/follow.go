package pos

import (
	"context"

	"github.com/maruel/tallerdb/internal/chunk"
)

// Follow streams the flattened records of a collection on every change,
// filtered with the same visibility rules as the List methods. Products and
// clients are sorted by name, the rest newest first.
func (s *Service) Follow(ctx context.Context, v Viewer, collection string) (<-chan []chunk.Record, error) {
	c := s.Collection(collection)
	if c == nil {
		return nil, invalid("unknown collection %q", collection)
	}
	order := chunk.NewestFirst
	if c == s.Products || c == s.Clients {
		order = chunk.ByName
	}
	in, err := c.Follow(ctx, order)
	if err != nil {
		return nil, err
	}
	visible := func(chunk.Record) bool { return true }
	switch c {
	case s.Sales:
		if !v.SeesAllSales() {
			visible = func(r chunk.Record) bool { return r.String("sellerId") == v.ID }
		}
	case s.Jobs:
		if !v.SeesAllJobs() {
			visible = func(r chunk.Record) bool { return r.String("technicianId") == v.ID }
		}
	}
	out := make(chan []chunk.Record)
	go func() {
		defer close(out)
		for recs := range in {
			kept := make([]chunk.Record, 0, len(recs))
			for _, r := range recs {
				if visible(r) {
					kept = append(kept, r)
				}
			}
			select {
			case out <- kept:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
