// Package jsonldb provides a generic, concurrent-safe, JSONL-backed data store.
//
// # Overview
//
// The package centers around [Table], a generic container that stores rows in a
// JSONL (JSON Lines) file with full in-memory caching for fast reads. Tables are
// safe for concurrent use by multiple goroutines.
//
// # Concurrency: Pessimistic Locking
//
// [Table.Modify] holds the write lock for the entire read-modify-write operation,
// so it never needs a retry loop. Optimistic concurrency is layered on top by
// callers that need it (see the docstore package).
//
// # Secondary Indexes
//
// [UniqueIndex] provides O(1) lookups by arbitrary keys, staying synchronized
// with table mutations via [TableObserver].
//
// # File Format
//
// JSONL files with line 1 as a header holding the format version, subsequent
// lines as JSON rows in insertion order.
package jsonldb
