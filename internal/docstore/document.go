package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"
)

// Document is a single document of a collection.
type Document struct {
	ID      string         `json:"id"`
	Fields  map[string]any `json:"fields"`
	Version int64          `json:"version"`
	Updated time.Time      `json:"updated"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	c.Fields = cloneMap(d.Fields)
	return &c
}

// Key implements jsonldb.Row.
func (d *Document) Key() string {
	return d.ID
}

// Validate implements jsonldb.Row.
func (d *Document) Validate() error {
	if d.ID == "" {
		return errIDRequired
	}
	if d.Version <= 0 {
		return fmt.Errorf("document %s: version must be positive", d.ID)
	}
	return nil
}

// UnmarshalJSON decodes numbers as json.Number so int64 values survive.
func (d *Document) UnmarshalJSON(data []byte) error {
	type raw Document
	var r raw
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return err
	}
	*d = Document(r)
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	return nil
}

type deleteSentinel struct{}

// DeleteField is a sentinel value; writing it to a field path removes the path.
var DeleteField any = deleteSentinel{}

// FieldUpdate sets Path to Value. Path is dot separated.
type FieldUpdate struct {
	Path  string
	Value any
}

// Normalize converts arbitrary Go values into the JSON-shaped representation
// every backend stores: map[string]any, []any, string, bool, json.Number, nil.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, json.Number, deleteSentinel:
		return t, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case int:
		return json.Number(strconv.Itoa(t)), nil
	case int64:
		return json.Number(strconv.FormatInt(t, 10)), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not representable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	n, err := Normalize(fields)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return map[string]any{}, nil
	}
	return n.(map[string]any), nil
}

// Int converts a stored numeric value to int64.
func Int(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
	}
	return 0, false
}

// Decode converts a stored map into a typed value through JSON.
func Decode(src any, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Encode converts a typed value into its stored map representation.
func Encode(src any) (map[string]any, error) {
	n, err := Normalize(src)
	if err != nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, errors.New("value does not encode to an object")
	}
	return m, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// merge deep-merges src into dst. Nested maps are merged, DeleteField removes.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if _, ok := v.(deleteSentinel); ok {
			delete(dst, k)
			continue
		}
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				merge(dm, sm)
				continue
			}
			dm := map[string]any{}
			merge(dm, sm)
			dst[k] = dm
			continue
		}
		dst[k] = cloneValue(v)
	}
}

// stripDeletes removes DeleteField sentinels from a plain (non-merge) write.
func stripDeletes(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		switch t := v.(type) {
		case deleteSentinel:
			delete(out, k)
		case map[string]any:
			out[k] = stripDeletes(t)
		}
	}
	return out
}
