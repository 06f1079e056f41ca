package chunk

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/maruel/tallerdb/internal/docstore"
)

// Order selects how Flatten sorts records.
type Order int

const (
	// Stored keeps chunk order, then key order within a chunk.
	Stored Order = iota
	// ByName sorts by the "name" field, case insensitive.
	ByName
	// NewestFirst sorts by creation time, most recent first.
	NewestFirst
)

// Flatten expands the prefixed keys of every chunk document into records
// annotated with their chunkDoc.
func Flatten(docs []*docstore.Document, prefix string, order Order) []Record {
	var out []Record
	for _, d := range docs {
		keys := make([]string, 0, len(d.Fields))
		for k := range d.Fields {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			m, ok := d.Fields[k].(map[string]any)
			if !ok {
				continue
			}
			rec := Record(m)
			rec[FieldChunkDoc] = d.ID
			if rec.ID() == "" {
				rec[FieldID] = k[len(prefix):]
			}
			out = append(out, rec)
		}
	}
	Sort(out, order)
	return out
}

// Sort sorts records in place. Ties keep their relative order.
func Sort(recs []Record, order Order) {
	switch order {
	case ByName:
		slices.SortStableFunc(recs, func(a, b Record) int {
			return cmp.Compare(strings.ToLower(a.String(FieldName)), strings.ToLower(b.String(FieldName)))
		})
	case NewestFirst:
		slices.SortStableFunc(recs, func(a, b Record) int {
			return b.Created().Compare(a.Created())
		})
	}
}

// List returns every record of the collection.
func (c *Collection) List(ctx context.Context, order Order) ([]Record, error) {
	docs, err := c.store.List(ctx, c.layout.Collection)
	if err != nil {
		return nil, err
	}
	return Flatten(docs, c.layout.Prefix, order), nil
}

// Follow re-flattens the collection on every change until ctx is done. Like
// Store.Watch, a slow receiver only sees the latest list.
func (c *Collection) Follow(ctx context.Context, order Order) (<-chan []Record, error) {
	snaps, err := c.store.Watch(ctx, c.layout.Collection)
	if err != nil {
		return nil, err
	}
	out := make(chan []Record, 1)
	go func() {
		defer close(out)
		for docs := range snaps {
			recs := Flatten(docs, c.layout.Prefix, order)
			select {
			case out <- recs:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- recs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
