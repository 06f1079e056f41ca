package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/maruel/tallerdb/internal/jsonldb"
)

var collectionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore is a MemStore whose commits are written through to one JSONL table
// per collection under a directory.
type FileStore struct {
	*MemStore
	dir    string
	tables map[string]*jsonldb.Table[*Document]
}

// OpenFileStore loads every collection found in dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directory
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &FileStore{
		MemStore: NewMemStore(),
		dir:      dir,
		tables:   map[string]*jsonldb.Table[*Document]{},
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".jsonl")
		if e.IsDir() || !ok || !collectionName.MatchString(name) {
			continue
		}
		t, err := s.table(name)
		if err != nil {
			return nil, err
		}
		for doc := range t.Iter() {
			s.applyLocked(change{key: docKey{collection: name, id: doc.ID}, next: doc})
		}
	}
	s.persist = s.write
	return s, nil
}

// Dir returns the directory holding the collection files.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) table(collection string) (*jsonldb.Table[*Document], error) {
	if t, ok := s.tables[collection]; ok {
		return t, nil
	}
	if !collectionName.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	t, err := jsonldb.NewTable[*Document](filepath.Join(s.dir, collection+".jsonl"))
	if err != nil {
		return nil, err
	}
	s.tables[collection] = t
	return t, nil
}

// write persists the changes of one commit. It runs under MemStore.mu.
// A failure midway leaves earlier documents of the same commit on disk.
func (s *FileStore) write(changes []change) error {
	for _, c := range changes {
		t, err := s.table(c.key.collection)
		if err != nil {
			return err
		}
		if c.next == nil {
			if err := t.Delete(c.key.id); err != nil && !errors.Is(err, jsonldb.ErrNotFound) {
				return fmt.Errorf("failed to delete %s: %w", c.key, err)
			}
			continue
		}
		if err := t.Upsert(c.next); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.key, err)
		}
	}
	return nil
}
