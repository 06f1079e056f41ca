package chunk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/tallerdb/internal/docstore"
)

// AppendAttempts bounds AppendTx.
const AppendAttempts = 3

var (
	// ErrChunksFull is returned by AppendTx when every attempted chunk was
	// full.
	ErrChunksFull = errors.New("no chunk with room after retries")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidID is returned for record ids that cannot be used as a field
	// name.
	ErrInvalidID = errors.New("invalid record id")
)

// Collection reads and writes the records of one Layout.
type Collection struct {
	store  docstore.Store
	layout Layout
}

// New returns a Collection. It panics on an invalid layout.
func New(store docstore.Store, layout Layout) *Collection {
	if err := layout.Validate(); err != nil {
		panic(err)
	}
	return &Collection{store: store, layout: layout}
}

// Layout returns the packing layout.
func (c *Collection) Layout() Layout {
	return c.layout
}

// Store returns the underlying store.
func (c *Collection) Store() docstore.Store {
	return c.store
}

// Target is the chunk a new record should go to.
type Target struct {
	ChunkDoc string
	// Count is the number of records already in the chunk.
	Count int
	// Fresh is true when the chunk does not exist yet.
	Fresh bool
}

// Locate returns the first chunk, in ascending id order, holding fewer than
// Capacity records. When every chunk is full it returns the next chunk id.
func (c *Collection) Locate(ctx context.Context) (Target, error) {
	docs, err := c.store.List(ctx, c.layout.Collection)
	if err != nil {
		return Target{}, fmt.Errorf("list %s chunks: %w", c.layout.Collection, err)
	}
	for _, d := range docs {
		if n := c.count(d.Fields); n < c.layout.Capacity {
			return Target{ChunkDoc: d.ID, Count: n}, nil
		}
	}
	return Target{ChunkDoc: c.nextID(docs), Fresh: true}, nil
}

func (c *Collection) count(fields map[string]any) int {
	n := 0
	for k := range fields {
		if strings.HasPrefix(k, c.layout.Prefix) {
			n++
		}
	}
	return n
}

// nextID returns the id of a new chunk.
func (c *Collection) nextID(docs []*docstore.Document) string {
	if !c.layout.Sequential {
		return ksid.NewID().String()
	}
	highest := 0
	for _, d := range docs {
		if n, ok := parseSeq(d.ID); ok && n > highest {
			highest = n
		}
	}
	return formatSeq(highest + 1)
}

// after returns the chunk id AppendTx moves to when id is full.
func (c *Collection) after(id string) string {
	if n, ok := parseSeq(id); ok && c.layout.Sequential {
		return formatSeq(n + 1)
	}
	return ksid.NewID().String()
}

// prepare fills in the id and timestamps of a new record.
func prepare(rec Record, now time.Time) (Record, error) {
	out := maps.Clone(rec)
	if out == nil {
		out = Record{}
	}
	id := out.ID()
	if id == "" {
		id = ksid.NewID().String()
		out[FieldID] = id
	}
	if strings.Contains(id, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if out.String(FieldCreatedAt) == "" {
		out[FieldCreatedAt] = Timestamp(now)
	}
	return out, nil
}

// Append merges rec into the located chunk without guarding capacity.
// Concurrent callers may overflow a chunk. A missing id is generated.
func (c *Collection) Append(ctx context.Context, rec Record) (Record, error) {
	rec, err := prepare(rec, time.Now())
	if err != nil {
		return nil, err
	}
	target, err := c.Locate(ctx)
	if err != nil {
		return nil, err
	}
	rec[FieldChunkDoc] = target.ChunkDoc
	fields := map[string]any{c.layout.Key(rec.ID()): map[string]any(rec)}
	if err := c.store.Set(ctx, c.layout.Collection, target.ChunkDoc, fields, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("append %s: %w", c.layout.Key(rec.ID()), err)
	}
	return rec, nil
}

// AppendTx inserts rec with a transactional capacity check. When the target
// chunk is full it moves to the next sequential id, up to AppendAttempts
// times, without rescanning for other chunks with room.
func (c *Collection) AppendTx(ctx context.Context, rec Record) (Record, error) {
	rec, err := prepare(rec, time.Now())
	if err != nil {
		return nil, err
	}
	target, err := c.Locate(ctx)
	if err != nil {
		return nil, err
	}
	key := c.layout.Key(rec.ID())
	chunkDoc := target.ChunkDoc
	for attempt := range AppendAttempts {
		full := false
		rec[FieldChunkDoc] = chunkDoc
		err := c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			full = false
			doc, err := tx.Get(c.layout.Collection, chunkDoc)
			if err != nil && !errors.Is(err, docstore.ErrNotFound) {
				return err
			}
			if doc != nil {
				if c.count(doc.Fields) >= c.layout.Capacity {
					full = true
					return nil
				}
				if _, ok := doc.Fields[key]; ok {
					return fmt.Errorf("append %s: duplicate key in chunk %s", key, chunkDoc)
				}
			}
			return tx.Set(c.layout.Collection, chunkDoc, map[string]any{key: map[string]any(rec)}, docstore.Merge())
		})
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", key, err)
		}
		if !full {
			return rec, nil
		}
		next := c.after(chunkDoc)
		slog.DebugContext(ctx, "chunk full", "collection", c.layout.Collection, "chunk", chunkDoc, "next", next, "attempt", attempt+1)
		chunkDoc = next
	}
	return nil, fmt.Errorf("append %s to %s: %w", key, c.layout.Collection, ErrChunksFull)
}

// Get returns the record at ref.
func (c *Collection) Get(ctx context.Context, ref Ref) (Record, error) {
	doc, err := c.store.Get(ctx, c.layout.Collection, ref.ChunkDoc)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	rec, ok := c.record(doc, ref.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return rec, nil
}

// Find scans every chunk for the record with the given id.
func (c *Collection) Find(ctx context.Context, id string) (Record, error) {
	docs, err := c.store.List(ctx, c.layout.Collection)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if rec, ok := c.record(d, id); ok {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (c *Collection) record(doc *docstore.Document, id string) (Record, bool) {
	m, ok := doc.Fields[c.layout.Key(id)].(map[string]any)
	if !ok {
		return nil, false
	}
	rec := Record(m)
	rec[FieldChunkDoc] = doc.ID
	if rec.ID() == "" {
		rec[FieldID] = id
	}
	return rec, true
}

// Changes maps record ids to the field updates to apply to them. Field names
// may be dotted paths relative to the record. A nil map for an id removes
// the record.
type Changes map[string]map[string]any

// Batch runs fn over the records of one chunk inside a transaction and
// applies the returned changes atomically. fn may run several times.
func (c *Collection) Batch(ctx context.Context, chunkDoc string, fn func(recs map[string]Record) (Changes, error)) error {
	return c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(c.layout.Collection, chunkDoc)
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkDoc)
		}
		if err != nil {
			return err
		}
		recs := map[string]Record{}
		for k := range doc.Fields {
			if id, ok := strings.CutPrefix(k, c.layout.Prefix); ok {
				if rec, ok := c.record(doc, id); ok {
					recs[id] = rec
				}
			}
		}
		changes, err := fn(recs)
		if err != nil {
			return err
		}
		var updates []docstore.FieldUpdate
		for id, fields := range changes {
			if _, ok := recs[id]; !ok {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, chunkDoc, id)
			}
			key := c.layout.Key(id)
			if fields == nil {
				updates = append(updates, docstore.FieldUpdate{Path: key, Value: docstore.DeleteField})
				continue
			}
			for f, v := range fields {
				if f == FieldID || f == FieldChunkDoc {
					return fmt.Errorf("%s: field %q is immutable", key, f)
				}
				updates = append(updates, docstore.FieldUpdate{Path: docstore.JoinPath(key, f), Value: v})
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Update(c.layout.Collection, chunkDoc, updates...)
	})
}

// Mutate runs fn on the record at ref inside a transaction and writes back
// the returned field updates.
func (c *Collection) Mutate(ctx context.Context, ref Ref, fn func(rec Record) (map[string]any, error)) error {
	return c.Batch(ctx, ref.ChunkDoc, func(recs map[string]Record) (Changes, error) {
		rec, ok := recs[ref.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		fields, err := fn(rec)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, nil
		}
		return Changes{ref.ID: fields}, nil
	})
}

// UpdateFields sets fields of an existing record and stamps updatedAt.
func (c *Collection) UpdateFields(ctx context.Context, ref Ref, fields map[string]any) error {
	return c.Mutate(ctx, ref, func(Record) (map[string]any, error) {
		out := maps.Clone(fields)
		if out == nil {
			out = map[string]any{}
		}
		out[FieldUpdatedAt] = Timestamp(time.Now())
		return out, nil
	})
}

// SoftDelete marks the record with status and deletedAt, keeping it.
func (c *Collection) SoftDelete(ctx context.Context, ref Ref, status string) error {
	now := Timestamp(time.Now())
	return c.Mutate(ctx, ref, func(Record) (map[string]any, error) {
		return map[string]any{FieldStatus: status, FieldDeletedAt: now, FieldUpdatedAt: now}, nil
	})
}

// HardDelete removes the record key from its chunk.
func (c *Collection) HardDelete(ctx context.Context, ref Ref) error {
	return c.Batch(ctx, ref.ChunkDoc, func(recs map[string]Record) (Changes, error) {
		if _, ok := recs[ref.ID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return Changes{ref.ID: nil}, nil
	})
}
