// Package handlers implements the HTTP API on top of the pos and identity
// services. Handlers are plain methods wrapped by the server package.
package handlers

import (
	"time"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
)

// Services bundles what the handlers operate on.
type Services struct {
	User *identity.UserService
	POS  *pos.Service
}

// Config holds request handling settings.
type Config struct {
	JWTSecret           []byte
	TokenTTL            time.Duration
	MaxRequestBodyBytes int64
	Version             string
	// Store names the document store backend, reported by the health check.
	Store string
}

func viewer(u *identity.User) pos.Viewer {
	return pos.Viewer{ID: u.ID.String(), Name: u.Name, Perms: u.Permissions}
}
