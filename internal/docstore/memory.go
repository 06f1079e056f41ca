package docstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// change is one document transition inside a commit; next is nil on delete.
type change struct {
	key  docKey
	next *Document
}

// MemStore is an in-process Store.
type MemStore struct {
	mu       sync.Mutex
	colls    map[string]map[string]*Document
	gone     map[docKey]int64 // last version of deleted documents
	watchers map[string]map[*watcher]struct{}
	closed   bool
	// persist, when set, is called under mu before a commit becomes visible.
	// An error aborts the commit.
	persist func(changes []change) error
}

type watcher struct {
	ch chan []*Document
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		colls:    map[string]map[string]*Document{},
		gone:     map[docKey]int64{},
		watchers: map[string]map[*watcher]struct{}{},
	}
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	k, err := newKey(collection, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, k)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return doc.Clone(), nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, collection string) ([]*Document, error) {
	if collection == "" {
		return nil, errCollRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.snapshotLocked(collection), nil
}

// Set implements Store.
func (s *MemStore) Set(ctx context.Context, collection, id string, fields map[string]any, opts ...SetOption) error {
	w, err := newSetWrite(collection, id, fields, opts)
	return single(ctx, s, w, err)
}

// Update implements Store.
func (s *MemStore) Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error {
	w, err := newUpdateWrite(collection, id, updates)
	return single(ctx, s, w, err)
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, collection, id string) error {
	k, err := newKey(collection, id)
	return single(ctx, s, write{key: k, op: opDelete}, err)
}

// RunTransaction implements Store.
func (s *MemStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, s, fn)
}

// Watch implements Store.
func (s *MemStore) Watch(ctx context.Context, collection string) (<-chan []*Document, error) {
	if collection == "" {
		return nil, errCollRequired
	}
	w := &watcher{ch: make(chan []*Document, 1)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.watchers[collection] == nil {
		s.watchers[collection] = map[*watcher]struct{}{}
	}
	s.watchers[collection][w] = struct{}{}
	w.ch <- s.snapshotLocked(collection)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[collection][w]; ok {
			delete(s.watchers[collection], w)
			close(w.ch)
		}
	}()
	return w.ch, nil
}

// Close implements Store. Watch channels are closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, ws := range s.watchers {
		for w := range ws {
			close(w.ch)
		}
	}
	s.watchers = map[string]map[*watcher]struct{}{}
	return nil
}

func (s *MemStore) load(ctx context.Context, k docKey) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	doc := s.colls[k.collection][k.id]
	if doc == nil {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (s *MemStore) commit(ctx context.Context, reads map[docKey]int64, writes []write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, v := range reads {
		var cur int64
		if doc := s.colls[k.collection][k.id]; doc != nil {
			cur = doc.Version
		}
		if cur != v {
			return errConflict
		}
	}
	now := time.Now().UTC()
	pending := map[docKey]*Document{}
	var order []docKey
	for _, w := range writes {
		cur, seen := pending[w.key]
		if !seen {
			cur = s.colls[w.key.collection][w.key.id]
			order = append(order, w.key)
		}
		// Several writes to one document in one commit bump the version once.
		next, err := apply(cur, s.versionLocked(w.key), w, now)
		if err != nil {
			return err
		}
		pending[w.key] = next
	}
	changes := make([]change, 0, len(order))
	for _, k := range order {
		changes = append(changes, change{key: k, next: pending[k]})
	}
	if s.persist != nil {
		if err := s.persist(changes); err != nil {
			return err
		}
	}
	touched := map[string]struct{}{}
	for _, c := range changes {
		s.applyLocked(c)
		touched[c.key.collection] = struct{}{}
	}
	for coll := range touched {
		s.notifyLocked(coll)
	}
	return nil
}

// versionLocked returns the committed version of k, including deleted ones.
func (s *MemStore) versionLocked(k docKey) int64 {
	if doc := s.colls[k.collection][k.id]; doc != nil {
		return doc.Version
	}
	return s.gone[k]
}

func (s *MemStore) applyLocked(c change) {
	if c.next == nil {
		if doc := s.colls[c.key.collection][c.key.id]; doc != nil {
			s.gone[c.key] = doc.Version
			delete(s.colls[c.key.collection], c.key.id)
		}
		return
	}
	delete(s.gone, c.key)
	if s.colls[c.key.collection] == nil {
		s.colls[c.key.collection] = map[string]*Document{}
	}
	s.colls[c.key.collection][c.key.id] = c.next
}

func (s *MemStore) snapshotLocked(collection string) []*Document {
	docs := s.colls[collection]
	ids := slices.Sorted(maps.Keys(docs))
	out := make([]*Document, len(ids))
	for i, id := range ids {
		out[i] = docs[id].Clone()
	}
	return out
}

func (s *MemStore) notifyLocked(collection string) {
	ws := s.watchers[collection]
	if len(ws) == 0 {
		return
	}
	for w := range ws {
		snap := s.snapshotLocked(collection)
		select {
		case w.ch <- snap:
		default:
			// Replace the stale pending snapshot.
			select {
			case <-w.ch:
			default:
			}
			w.ch <- snap
		}
	}
}
