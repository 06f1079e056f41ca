package docstore

import (
	"fmt"
	"strings"
)

// SplitPath splits a dotted field path into its segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errEmptyPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", errEmptySegment, path)
		}
	}
	return parts, nil
}

// JoinPath joins segments into a dotted field path.
func JoinPath(segments ...string) string {
	return strings.Join(segments, ".")
}

// GetPath returns the value at path. Traversing a non-map value yields absent.
func GetPath(fields map[string]any, path string) (any, bool) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, false
	}
	var cur any = fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at path, creating intermediate maps. A non-map value in
// the way is replaced by a map.
func setPath(fields map[string]any, path string, value any) error {
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}
	if _, ok := value.(deleteSentinel); ok {
		deletePath(fields, parts)
		return nil
	}
	m := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = cloneValue(value)
	return nil
}

func deletePath(fields map[string]any, parts []string) {
	m := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}
