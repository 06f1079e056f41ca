package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maruel/tallerdb/internal/config"
	"golang.org/x/time/rate"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(10, time.Minute, 3)
	defer l.Close()

	for i := range 3 {
		if r := l.Allow("k"); !r.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	r := l.Allow("k")
	if r.Allowed {
		t.Fatal("4th request should be limited")
	}
	if r.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining)
	}
	// 10/min is one token every 6s.
	if r.RetryAfter < 6*time.Second || r.RetryAfter >= 7*time.Second {
		t.Errorf("RetryAfter = %v, want ~6s", r.RetryAfter)
	}
	if r.Limit != 10 {
		t.Errorf("Limit = %d, want 10", r.Limit)
	}
	if !l.Allow("other").Allowed {
		t.Error("keys must not share buckets")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(60, time.Minute, 1)
	defer l.Close()
	l.Allow("spent")
	l.mu.Lock()
	l.buckets["idle"] = &bucket{limiter: rate.NewLimiter(l.rate, l.burst), lastSeen: time.Now().Add(-time.Hour)}
	l.mu.Unlock()

	l.cleanup(time.Now().Add(-10 * time.Minute))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["idle"]; ok {
		t.Error("idle full bucket should be removed")
	}
	if _, ok := l.buckets["spent"]; !ok {
		t.Error("recent bucket should be kept")
	}
}

func TestConfig_Match(t *testing.T) {
	c := NewConfig(config.DefaultRateLimits())
	defer c.Close()
	for _, tc := range []struct {
		method, path string
		want         *Tier
	}{
		{"GET", "/api/health", nil},
		{"POST", "/api/v1/auth/login", c.Auth},
		{"POST", "/api/v1/auth/register", c.Auth},
		{"GET", "/api/v1/auth/me", c.Read},
		{"POST", "/api/v1/sales", c.Write},
		{"PUT", "/api/v1/products/0001/p1", c.Write},
		{"DELETE", "/api/v1/clients/x/y", c.Write},
		{"GET", "/api/v1/products", c.Read},
		{"OPTIONS", "/api/v1/products", nil},
	} {
		if got := c.Match(tc.method, tc.path); got != tc.want {
			t.Errorf("Match(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
	if c.Auth.Scope != ScopeIP || c.Write.Scope != ScopeUser {
		t.Error("unexpected scopes")
	}

	unlimited := NewConfig(config.RateLimits{})
	if unlimited.Match("POST", "/api/v1/sales") != nil {
		t.Error("zero limit should disable the tier")
	}
	unlimited.Close()
	var nilConfig *Config
	if nilConfig.Match("GET", "/api/v1/products") != nil {
		t.Error("nil config should not limit")
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	res := Result{Allowed: false, Limit: 60, ResetAt: time.Unix(1706012345, 0), RetryAfter: 30 * time.Second}
	w := NewResponseWriter(rec, res)
	w.WriteHeader(http.StatusTooManyRequests)
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %s", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1706012345" {
		t.Errorf("X-RateLimit-Reset = %s", got)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %s", got)
	}
	if w.Unwrap() != rec {
		t.Error("Unwrap")
	}
	if got := BuildKey(ScopeUser, "u1", "write"); got != "user:u1:write" {
		t.Errorf("BuildKey = %s", got)
	}
}
