package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxAttempts is the number of times RunTransaction runs its function before
// giving up with ErrConflict.
const MaxAttempts = 5

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a transaction kept conflicting with
	// concurrent writers.
	ErrConflict = errors.New("transaction conflict")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	errConflict       = errors.New("stale read")
	errIDRequired     = errors.New("document id is required")
	errCollRequired   = errors.New("collection is required")
	errEmptyPath      = errors.New("field path is empty")
	errEmptySegment   = errors.New("field path has an empty segment")
	errReadAfterWrite = errors.New("transaction reads must happen before writes")
)

// Store is a document database.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// List returns every document of the collection in ascending ID order.
	List(ctx context.Context, collection string) ([]*Document, error)
	// Set overwrites the document, or deep-merges into it with Merge.
	Set(ctx context.Context, collection, id string, fields map[string]any, opts ...SetOption) error
	// Update applies dotted field-path updates to an existing document.
	Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// RunTransaction runs fn as an optimistic read-modify-write transaction.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Watch sends the full collection on subscription and after every change
	// until ctx is done. Slow receivers only observe the latest snapshot.
	Watch(ctx context.Context, collection string) (<-chan []*Document, error)
	// Close releases resources.
	Close() error
}

// Tx is a transaction handle. Reads must happen before writes.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, fields map[string]any, opts ...SetOption) error
	Update(collection, id string, updates ...FieldUpdate) error
	Delete(collection, id string) error
}

// SetOption configures Set.
type SetOption func(*setOptions)

type setOptions struct {
	merge bool
}

// Merge makes Set deep-merge into the existing document instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

type docKey struct {
	collection string
	id         string
}

func (k docKey) String() string {
	return k.collection + "/" + k.id
}

type opKind int

const (
	opSet opKind = iota
	opMerge
	opUpdate
	opDelete
)

// write is one buffered mutation.
type write struct {
	key     docKey
	op      opKind
	fields  map[string]any
	updates []FieldUpdate
}

func newKey(collection, id string) (docKey, error) {
	if collection == "" {
		return docKey{}, errCollRequired
	}
	if id == "" {
		return docKey{}, errIDRequired
	}
	return docKey{collection: collection, id: id}, nil
}

func newSetWrite(collection, id string, fields map[string]any, opts []SetOption) (write, error) {
	k, err := newKey(collection, id)
	if err != nil {
		return write{}, err
	}
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	n, err := normalizeFields(fields)
	if err != nil {
		return write{}, fmt.Errorf("%s: %w", k, err)
	}
	w := write{key: k, op: opSet, fields: n}
	if o.merge {
		w.op = opMerge
	}
	return w, nil
}

func newUpdateWrite(collection, id string, updates []FieldUpdate) (write, error) {
	k, err := newKey(collection, id)
	if err != nil {
		return write{}, err
	}
	out := make([]FieldUpdate, len(updates))
	for i, u := range updates {
		if _, err := SplitPath(u.Path); err != nil {
			return write{}, err
		}
		v, err := Normalize(u.Value)
		if err != nil {
			return write{}, fmt.Errorf("%s %s: %w", k, u.Path, err)
		}
		out[i] = FieldUpdate{Path: u.Path, Value: v}
	}
	return write{key: k, op: opUpdate, updates: out}, nil
}

// apply computes the new state of a document. cur may be nil when the document
// does not exist; a nil return means the document is deleted. base is the last
// committed version of the key, kept across deletes so that a recreated
// document never reuses a version an earlier reader may hold.
func apply(cur *Document, base int64, w write, now time.Time) (*Document, error) {
	next := &Document{ID: w.key.id, Version: base + 1, Updated: now}
	switch w.op {
	case opDelete:
		return nil, nil
	case opSet:
		next.Fields = cloneMap(stripDeletes(w.fields))
	case opMerge:
		next.Fields = map[string]any{}
		if cur != nil {
			next.Fields = cloneMap(cur.Fields)
		}
		merge(next.Fields, w.fields)
	case opUpdate:
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, w.key)
		}
		next.Fields = cloneMap(cur.Fields)
		for _, u := range w.updates {
			if err := setPath(next.Fields, u.Path, u.Value); err != nil {
				return nil, err
			}
		}
	}
	return next, nil
}

// backend is what a concrete store provides to the shared transaction engine.
type backend interface {
	// load returns the current document or nil if missing.
	load(ctx context.Context, k docKey) (*Document, error)
	// commit applies writes if every document in reads still has the recorded
	// version (0 meaning "did not exist"). Returns errConflict otherwise.
	commit(ctx context.Context, reads map[docKey]int64, writes []write) error
}

type txn struct {
	ctx    context.Context
	b      backend
	reads  map[docKey]int64
	writes []write
}

func (t *txn) Get(collection, id string) (*Document, error) {
	k, err := newKey(collection, id)
	if err != nil {
		return nil, err
	}
	if len(t.writes) > 0 {
		return nil, errReadAfterWrite
	}
	doc, err := t.b.load(t.ctx, k)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		t.reads[k] = 0
		return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	t.reads[k] = doc.Version
	return doc.Clone(), nil
}

func (t *txn) Set(collection, id string, fields map[string]any, opts ...SetOption) error {
	w, err := newSetWrite(collection, id, fields, opts)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, w)
	return nil
}

func (t *txn) Update(collection, id string, updates ...FieldUpdate) error {
	w, err := newUpdateWrite(collection, id, updates)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, w)
	return nil
}

func (t *txn) Delete(collection, id string) error {
	k, err := newKey(collection, id)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, write{key: k, op: opDelete})
	return nil
}

// runTransaction is the optimistic retry loop shared by every backend.
func runTransaction(ctx context.Context, b backend, fn func(ctx context.Context, tx Tx) error) error {
	for range MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := &txn{ctx: ctx, b: b, reads: map[docKey]int64{}}
		if err := fn(ctx, t); err != nil {
			return err
		}
		if len(t.writes) == 0 {
			return nil
		}
		err := b.commit(ctx, t.reads, t.writes)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) {
			return err
		}
	}
	return ErrConflict
}

// single commits one write outside of any transaction.
func single(ctx context.Context, b backend, w write, err error) error {
	if err != nil {
		return err
	}
	return b.commit(ctx, nil, []write{w})
}
