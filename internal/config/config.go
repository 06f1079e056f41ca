// Manages server configuration stored in server_config.json and .env.

// Package config loads the server-wide settings kept in the data directory.
package config

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/pos"
)

// FileName is the name of the configuration file inside the data directory.
const FileName = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// JWTSecret is the secret used to sign JWT tokens.
	// Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret"`

	// TokenTTLHours is how long an issued token stays valid.
	TokenTTLHours int `json:"token_ttl_hours"`

	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// Chunks sets how many records each chunk document holds per collection.
	Chunks Capacities `json:"chunks"`

	// Locations lists the stock locations. The first one is the default.
	Locations []string `json:"locations"`
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// AuthRatePerMin limits authentication attempts (login, register).
	// 0 means unlimited.
	AuthRatePerMin int `json:"auth_rate_per_min"`

	// WriteRatePerMin limits write operations (POST/PUT/DELETE).
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// ReadRatePerMin limits authenticated read operations.
	// 0 means unlimited.
	ReadRatePerMin int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.AuthRatePerMin < 0 {
		return errors.New("auth_rate_per_min must be non-negative")
	}
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		AuthRatePerMin:  5,     // 5 req/min for auth
		WriteRatePerMin: 600,   // a busy counter rings up a sale every few seconds
		ReadRatePerMin:  30000, // 30k req/min for authenticated reads
	}
}

// Capacities is the number of records per chunk document, per collection.
type Capacities struct {
	Products int `json:"products"`
	Sales    int `json:"sales"`
	Budgets  int `json:"budgets"`
	Clients  int `json:"clients"`
	Jobs     int `json:"jobs"`
	Cash     int `json:"cash"`
}

// DefaultCapacities returns the capacities of pos.DefaultLayouts.
func DefaultCapacities() Capacities {
	l := pos.DefaultLayouts()
	return Capacities{
		Products: l.Products.Capacity,
		Sales:    l.Sales.Capacity,
		Budgets:  l.Budgets.Capacity,
		Clients:  l.Clients.Capacity,
		Jobs:     l.Jobs.Capacity,
		Cash:     l.Cash.Capacity,
	}
}

// Validate checks that every capacity is positive.
func (c *Capacities) Validate() error {
	for name, v := range map[string]int{
		"products": c.Products,
		"sales":    c.Sales,
		"budgets":  c.Budgets,
		"clients":  c.Clients,
		"jobs":     c.Jobs,
		"cash":     c.Cash,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Layouts returns the default layouts with these capacities applied.
// Collection names and prefixes are fixed: they are part of the stored data.
func (c *Capacities) Layouts() pos.Layouts {
	l := pos.DefaultLayouts()
	l.Products.Capacity = c.Products
	l.Sales.Capacity = c.Sales
	l.Budgets.Capacity = c.Budgets
	l.Clients.Capacity = c.Clients
	l.Jobs.Capacity = c.Jobs
	l.Cash.Capacity = c.Cash
	return l
}

// TokenTTL returns TokenTTLHours as a duration.
func (c *ServerConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("jwt_secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.TokenTTLHours <= 0 {
		return errors.New("token_ttl_hours must be positive")
	}
	if c.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.Chunks.Validate(); err != nil {
		return fmt.Errorf("chunks: %w", err)
	}
	if len(c.Locations) == 0 {
		return errors.New("locations must not be empty")
	}
	seen := make(map[string]bool, len(c.Locations))
	for _, l := range c.Locations {
		if l == "" || strings.ContainsAny(l, ". ") {
			return fmt.Errorf("invalid location %q", l)
		}
		if seen[l] {
			return fmt.Errorf("duplicate location %q", l)
		}
		seen[l] = true
	}
	return nil
}

// Default returns a configuration with every field but JWTSecret set.
func Default() ServerConfig {
	return ServerConfig{
		TokenTTLHours:       24,
		MaxRequestBodyBytes: 10 * 1024 * 1024, // 10 MiB, enough for a catalog import
		RateLimits:          DefaultRateLimits(),
		Chunks:              DefaultCapacities(),
		Locations:           append([]string(nil), pos.DefaultLocations...),
	}
}

// Load loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret if empty.
func Load(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, FileName)

	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
		// File doesn't exist, will create with defaults
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	}

	modified := false
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}

	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dataDir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

// LoadDotEnv reads dataDir/.env into a map. A missing file yields an empty
// map. Values may be double quoted; single quotes are rejected.
func LoadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}
