package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("creates defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(cfg.JWTSecret) != 32 {
			t.Errorf("JWTSecret length = %d, want 32", len(cfg.JWTSecret))
		}
		if cfg.TokenTTL() != 24*time.Hour {
			t.Errorf("TokenTTL = %v", cfg.TokenTTL())
		}
		if cfg.Chunks != DefaultCapacities() {
			t.Errorf("Chunks = %+v", cfg.Chunks)
		}
		if !slices.Equal(cfg.Locations, []string{"local", "deposito"}) {
			t.Errorf("Locations = %v", cfg.Locations)
		}
		st, err := os.Stat(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatal(err)
		}
		if st.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v, want 0600", st.Mode().Perm())
		}

		again, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(again.JWTSecret, cfg.JWTSecret) {
			t.Error("secret changed on reload")
		}
	})
	t.Run("keeps file values", func(t *testing.T) {
		dir := t.TempDir()
		raw := `{"jwt_secret":"` + strings.Repeat("A", 44) + `","token_ttl_hours":2,"chunks":{"products":50},"locations":["tienda"]}`
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.TokenTTL() != 2*time.Hour {
			t.Errorf("TokenTTL = %v", cfg.TokenTTL())
		}
		if cfg.Chunks.Products != 50 || cfg.Chunks.Sales != DefaultCapacities().Sales {
			t.Errorf("Chunks = %+v", cfg.Chunks)
		}
		if !slices.Equal(cfg.Locations, []string{"tienda"}) {
			t.Errorf("Locations = %v", cfg.Locations)
		}
		if cfg.RateLimits != DefaultRateLimits() {
			t.Errorf("RateLimits = %+v", cfg.RateLimits)
		}
		l := cfg.Chunks.Layouts()
		if l.Products.Capacity != 50 || l.Products.Prefix != "p_" || l.Products.Collection != "products" {
			t.Errorf("Layouts().Products = %+v", l.Products)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		for _, tc := range []struct {
			name string
			mod  func(c *ServerConfig)
		}{
			{"short secret", func(c *ServerConfig) { c.JWTSecret = []byte("short") }},
			{"ttl", func(c *ServerConfig) { c.TokenTTLHours = 0 }},
			{"rate", func(c *ServerConfig) { c.RateLimits.WriteRatePerMin = -1 }},
			{"capacity", func(c *ServerConfig) { c.Chunks.Cash = 0 }},
			{"no locations", func(c *ServerConfig) { c.Locations = nil }},
			{"dotted location", func(c *ServerConfig) { c.Locations = []string{"a.b"} }},
			{"duplicate location", func(c *ServerConfig) { c.Locations = []string{"a", "a"} }},
		} {
			t.Run(tc.name, func(t *testing.T) {
				c := Default()
				c.JWTSecret = bytes.Repeat([]byte{1}, 32)
				tc.mod(&c)
				if err := c.Validate(); err == nil {
					t.Fatal("expected error")
				}
				data, err := json.Marshal(&c)
				if err != nil {
					t.Fatal(err)
				}
				dir := t.TempDir()
				if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o600); err != nil {
					t.Fatal(err)
				}
				if _, err := Load(dir); err == nil {
					t.Fatal("Load accepted an invalid file")
				}
			})
		}
	})
	t.Run("bad json", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		env, err := LoadDotEnv(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		if len(env) != 0 {
			t.Errorf("env = %v", env)
		}
	})
	t.Run("parses", func(t *testing.T) {
		dir := t.TempDir()
		content := "# comment\nHTTP=:9090\n\nLOG_LEVEL = debug\nREDIS_URL=\"redis://localhost:6379/0\"\nnoequals\n"
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		env, err := LoadDotEnv(dir)
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]string{"HTTP": ":9090", "LOG_LEVEL": "debug", "REDIS_URL": "redis://localhost:6379/0"}
		if len(env) != len(want) {
			t.Fatalf("env = %v", env)
		}
		for k, v := range want {
			if env[k] != v {
				t.Errorf("%s = %q, want %q", k, env[k], v)
			}
		}
	})
	for _, tc := range []struct {
		name, content string
	}{
		{"single quotes", "A='x'\n"},
		{"unbalanced", "A='x\n"},
		{"bad quote", "A=\"x\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadDotEnv(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
