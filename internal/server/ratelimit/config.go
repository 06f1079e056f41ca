// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/config"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses authenticated user ID as the rate limit key.
	ScopeUser
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds rate limiters for different tiers. A nil tier is unlimited.
type Config struct {
	Auth  *Tier
	Write *Tier
	Read  *Tier
}

// NewConfig creates the tiers from the per-minute limits in rl. Zero limits
// disable the tier.
func NewConfig(rl config.RateLimits) *Config {
	tier := func(name string, perMin, burst int, scope Scope) *Tier {
		if perMin == 0 {
			return nil
		}
		return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, max(burst, 1)), Scope: scope}
	}
	return &Config{
		Auth:  tier("auth", rl.AuthRatePerMin, rl.AuthRatePerMin, ScopeIP),
		Write: tier("write", rl.WriteRatePerMin, rl.WriteRatePerMin/6, ScopeUser),
		Read:  tier("read", rl.ReadRatePerMin, rl.ReadRatePerMin/6, ScopeUser),
	}
}

// Match returns the tier applying to a request, or nil when it should not be
// rate limited.
func (c *Config) Match(method, path string) *Tier {
	if c == nil || path == "/api/health" {
		return nil
	}
	if isAuthEndpoint(method, path) {
		return c.Auth
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return c.Write
	case http.MethodGet:
		return c.Read
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	for _, t := range []*Tier{c.Auth, c.Write, c.Read} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}

// isAuthEndpoint checks if the path is an unauthenticated login endpoint.
func isAuthEndpoint(method, path string) bool {
	return method == http.MethodPost && strings.HasPrefix(path, "/api/v1/auth/") &&
		(strings.HasSuffix(path, "/login") || strings.HasSuffix(path, "/register"))
}
