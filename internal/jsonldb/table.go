package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// currentVersion is the current version of the JSONL file format.
const currentVersion = "1"

var (
	errKeyRequired = errors.New("row key is required")
	errDuplicate   = errors.New("row with this key already exists")
	// ErrNotFound is returned by Modify and Delete when no row has the key.
	ErrNotFound = errors.New("row not found")
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is the constraint for types stored in a Table.
type Row[T any] interface {
	Cloner[T]
	// Key returns the unique primary key of the row.
	Key() string
	// Validate is called before every write.
	Validate() error
}

// TableObserver is notified of every successful mutation. Callbacks run while
// the table write lock is held and must not call back into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

type header struct {
	Version string `json:"version"`
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string

	mu        sync.RWMutex
	rows      []T
	byKey     map[string]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directory
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	table := &Table[T]{path: path}
	if err := table.load(); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = nil
	t.byKey = make(map[string]int)
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var h header
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("failed to parse header in %s: %w", t.path, err)
			}
			if h.Version != currentVersion {
				return fmt.Errorf("unsupported table version %q in %s", h.Version, t.path)
			}
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		// Later lines win; this tolerates manual edits that duplicate a key.
		if i, ok := t.byKey[row.Key()]; ok {
			t.rows[i] = row
			continue
		}
		t.byKey[row.Key()] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	return nil
}

// AddObserver registers an observer and replays every existing row as OnAppend.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range t.rows {
		o.OnAppend(row)
	}
	t.observers = append(t.observers, o)
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given key, or the zero value.
func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return t.rows[i].Clone(), true
}

// Iter returns an iterator over clones of all rows in insertion order.
func (t *Table[T]) Iter() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		rows := make([]T, len(t.rows))
		for i, row := range t.rows {
			rows[i] = row.Clone()
		}
		t.mu.RUnlock()
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := check(row); err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byKey[row.Key()]; ok {
		return fmt.Errorf("%w: %s", errDuplicate, row.Key())
	}
	if err := t.appendLine(data); err != nil {
		return err
	}
	t.byKey[row.Key()] = len(t.rows)
	t.rows = append(t.rows, row.Clone())
	for _, o := range t.observers {
		o.OnAppend(row)
	}
	return nil
}

// Modify atomically applies fn to a clone of the row and persists the result.
// If fn returns an error, nothing is written.
func (t *Table[T]) Modify(key string, fn func(row T) error) (T, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byKey[key]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	prev := t.rows[i]
	curr := prev.Clone()
	if err := fn(curr); err != nil {
		return zero, err
	}
	if curr.Key() != key {
		return zero, fmt.Errorf("row key cannot change from %q to %q", key, curr.Key())
	}
	if err := check(curr); err != nil {
		return zero, err
	}
	t.rows[i] = curr
	if err := t.flush(); err != nil {
		t.rows[i] = prev
		return zero, err
	}
	for _, o := range t.observers {
		o.OnUpdate(prev, curr)
	}
	return curr.Clone(), nil
}

// Upsert replaces the row with the same key or appends it.
func (t *Table[T]) Upsert(row T) error {
	if err := check(row); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row = row.Clone()
	i, ok := t.byKey[row.Key()]
	if !ok {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if err := t.appendLine(data); err != nil {
			return err
		}
		t.byKey[row.Key()] = len(t.rows)
		t.rows = append(t.rows, row)
		for _, o := range t.observers {
			o.OnAppend(row)
		}
		return nil
	}
	prev := t.rows[i]
	t.rows[i] = row
	if err := t.flush(); err != nil {
		t.rows[i] = prev
		return err
	}
	for _, o := range t.observers {
		o.OnUpdate(prev, row)
	}
	return nil
}

// Delete removes the row with the given key and persists the table.
func (t *Table[T]) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	prev := t.rows
	deleted := t.rows[i]
	rows := make([]T, 0, len(t.rows)-1)
	rows = append(rows, t.rows[:i]...)
	rows = append(rows, t.rows[i+1:]...)
	t.rows = rows
	if err := t.flush(); err != nil {
		t.rows = prev
		return err
	}
	t.reindex()
	for _, o := range t.observers {
		o.OnDelete(deleted)
	}
	return nil
}

// Replace replaces all rows with the provided slice and persists it.
// Observers are not notified; callers that replace rows should rebuild indexes.
func (t *Table[T]) Replace(rows []T) error {
	for _, row := range rows {
		if err := check(row); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.rows
	t.rows = make([]T, len(rows))
	for i, row := range rows {
		t.rows[i] = row.Clone()
	}
	if err := t.flush(); err != nil {
		t.rows = prev
		return err
	}
	t.reindex()
	return nil
}

func (t *Table[T]) reindex() {
	t.byKey = make(map[string]int, len(t.rows))
	for i, row := range t.rows {
		t.byKey[row.Key()] = i
	}
}

// appendLine appends one row, writing the header first if the file is new.
func (t *Table[T]) appendLine(data []byte) error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: data file
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat table file: %w", err)
	}
	var buf bytes.Buffer
	if st.Size() == 0 {
		if err := writeHeader(&buf); err != nil {
			return err
		}
	}
	buf.Write(data)
	buf.WriteByte('\n')
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// flush rewrites the whole file atomically via a temporary file.
func (t *Table[T]) flush() error {
	var buf bytes.Buffer
	if err := writeHeader(&buf); err != nil {
		return err
	}
	for _, row := range t.rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil { //nolint:gosec // G306: data file
		return fmt.Errorf("failed to write table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}

func writeHeader(buf *bytes.Buffer) error {
	data, err := json.Marshal(header{Version: currentVersion})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

func check[T Row[T]](row T) error {
	if row.Key() == "" {
		return errKeyRequired
	}
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row %s: %w", row.Key(), err)
	}
	return nil
}
