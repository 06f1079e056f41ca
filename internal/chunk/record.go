package chunk

import (
	"maps"
	"strconv"
	"time"

	"github.com/maruel/tallerdb/internal/docstore"
)

// Reserved record fields.
const (
	FieldID        = "id"
	FieldChunkDoc  = "chunkDoc"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedAt = "deletedAt"
	FieldStatus    = "status"
	FieldName      = "name"
)

// Ref addresses a record.
type Ref struct {
	ChunkDoc string `json:"chunkDoc" path:"chunk"`
	ID       string `json:"id" path:"id"`
}

func (r Ref) String() string {
	return r.ChunkDoc + "/" + r.ID
}

// Record is one logical record, in the shape stored by docstore.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() string {
	return r.String(FieldID)
}

// ChunkDoc returns the id of the chunk document holding the record.
func (r Record) ChunkDoc() string {
	return r.String(FieldChunkDoc)
}

// Ref returns the record address.
func (r Record) Ref() Ref {
	return Ref{ChunkDoc: r.ChunkDoc(), ID: r.ID()}
}

// String returns a string field, or "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns an integer field, or 0.
func (r Record) Int(key string) int64 {
	n, _ := docstore.Int(r[key])
	return n
}

// Lookup returns the value at a dotted path.
func (r Record) Lookup(path string) (any, bool) {
	return docstore.GetPath(r, path)
}

// Time returns an RFC 3339 timestamp field, or the zero time.
func (r Record) Time(key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.String(key))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Created returns the record creation time. Records without createdAt whose
// id is numeric use it as a Unix epoch in milliseconds.
func (r Record) Created() time.Time {
	if t := r.Time(FieldCreatedAt); !t.IsZero() {
		return t
	}
	if ms, err := strconv.ParseInt(r.ID(), 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// Deleted reports whether the record was soft deleted.
func (r Record) Deleted() bool {
	return r.String(FieldDeletedAt) != ""
}

// Decode converts the record into a typed value.
func (r Record) Decode(dst any) error {
	return docstore.Decode(map[string]any(r), dst)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c, _ := docstore.Normalize(map[string]any(r))
	if m, ok := c.(map[string]any); ok {
		return m
	}
	return maps.Clone(r)
}

// Timestamp formats t the way records store time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
