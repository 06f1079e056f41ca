package docstore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := OpenFileStore(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})

	t.Run("Reload", func(t *testing.T) {
		dir := t.TempDir()
		s, err := OpenFileStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		mustSet(t, s, "products", "0001", map[string]any{"p_0001": map[string]any{"name": "Cable", "price": 1500}})
		mustSet(t, s, "products", "0002", map[string]any{})
		mustSet(t, s, "sales", "0001", map[string]any{"v_x": map[string]any{"total": 1500}})
		if err := s.Delete(t.Context(), "products", "0002"); err != nil {
			t.Fatal(err)
		}
		_ = s.Close()
		if _, err := os.Stat(filepath.Join(dir, "products.jsonl")); err != nil {
			t.Fatal(err)
		}

		s2, err := OpenFileStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = s2.Close() }()
		docs, err := s2.List(t.Context(), "products")
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(docs); !reflect.DeepEqual(got, []string{"0001"}) {
			t.Fatalf("products = %v", got)
		}
		if v, _ := GetPath(docs[0].Fields, "p_0001.price"); v == nil {
			t.Errorf("price lost: %v", docs[0].Fields)
		} else if n, ok := Int(v); !ok || n != 1500 {
			t.Errorf("price = %#v", v)
		}
		if docs[0].Version != 1 {
			t.Errorf("Version = %d", docs[0].Version)
		}
		if _, err := s2.Get(t.Context(), "sales", "0001"); err != nil {
			t.Errorf("sales lost: %v", err)
		}
	})

	t.Run("Invalid collection", func(t *testing.T) {
		s, err := OpenFileStore(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Set(t.Context(), "../escape", "a", map[string]any{}); err == nil {
			t.Error("path traversal accepted")
		}
		if _, err := s.Get(t.Context(), "../escape", "a"); err == nil {
			t.Error("failed write became visible")
		}
	})
}
