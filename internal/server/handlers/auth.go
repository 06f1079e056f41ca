// Handles user authentication and account management.

package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"
	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/server/dto"
	"github.com/maruel/tallerdb/internal/server/reqctx"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	users     *identity.UserService
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
	// mu serializes Register so only one first account can be made.
	mu sync.Mutex
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *Services, cfg *Config) *AuthHandler {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthHandler{users: svc.User, jwtSecret: cfg.JWTSecret, ttl: ttl, now: time.Now}
}

// Login handles user login and returns a JWT token.
func (h *AuthHandler) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		slog.WarnContext(ctx, "Failed login", "email", req.Email, "ip", reqctx.ClientIP(ctx), "userAgent", reqctx.UserAgent(ctx))
		return nil, dto.Unauthorized("Invalid credentials")
	}
	return h.authResponse(user)
}

// Register creates the first account, which is granted admin. Once any
// account exists, new accounts are made by an admin.
func (h *AuthHandler) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users.Count() > 0 {
		return nil, dto.Forbidden("Registration is closed; ask an admin for an account")
	}
	user, err := h.users.Create(req.Email, req.Password, req.Name, identity.Permissions{identity.PermAdmin})
	if err != nil {
		return nil, MapError(err)
	}
	slog.InfoContext(ctx, "Registered first account", "user", user.ID, "email", user.Email)
	return h.authResponse(user)
}

// Me returns the current user.
func (h *AuthHandler) Me(_ context.Context, user *identity.User, _ *dto.Empty) (*dto.UserResponse, error) {
	return dto.NewUserResponse(user), nil
}

// GenerateToken generates a signed JWT for user.
func (h *AuthHandler) GenerateToken(user *identity.User) (string, time.Time, error) {
	now := h.now()
	exp := now.Add(h.ttl)
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"exp":   exp.Unix(),
		"iat":   now.Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	return s, exp, err
}

func (h *AuthHandler) authResponse(user *identity.User) (*dto.AuthResponse, error) {
	token, exp, err := h.GenerateToken(user)
	if err != nil {
		return nil, dto.InternalWithError("Failed to generate token", err)
	}
	return &dto.AuthResponse{
		Token:     token,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
		User:      dto.NewUserResponse(user),
	}, nil
}

// AdminHandler manages accounts. Every method requires the admin permission,
// checked by the router against the caller's stored permissions.
type AdminHandler struct {
	users *identity.UserService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *Services) *AdminHandler {
	return &AdminHandler{users: svc.User}
}

func parsePermissions(in []string) (identity.Permissions, error) {
	ps := make([]identity.Permission, len(in))
	for i, p := range in {
		ps[i] = identity.Permission(p)
	}
	perms, err := identity.NewPermissions(ps...)
	if err != nil {
		return nil, dto.BadRequest(err.Error())
	}
	return perms, nil
}

// CreateAccount creates the target account or returns the existing one.
func (h *AdminHandler) CreateAccount(ctx context.Context, caller *identity.User, req *dto.CreateAccountRequest) (*dto.AccountResponse, error) {
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	user, created, err := h.users.EnsureAccount(req.Email, req.Password, req.Name, perms)
	if err != nil {
		return nil, MapError(err)
	}
	if created {
		slog.InfoContext(ctx, "Account created", "by", caller.ID, "user", user.ID, "email", user.Email)
	}
	return &dto.AccountResponse{User: dto.NewUserResponse(user), Created: created}, nil
}

// ListAccounts lists every account.
func (h *AdminHandler) ListAccounts(_ context.Context, _ *identity.User, _ *dto.Empty) (*dto.ListUsersResponse, error) {
	out := &dto.ListUsersResponse{Users: make([]*dto.UserResponse, 0, h.users.Count())}
	for u := range h.users.Iter() {
		out.Users = append(out.Users, dto.NewUserResponse(u))
	}
	return out, nil
}

// SetPermissions replaces the permissions of an account. An admin cannot
// remove their own admin permission.
func (h *AdminHandler) SetPermissions(ctx context.Context, caller *identity.User, req *dto.SetPermissionsRequest) (*dto.UserResponse, error) {
	id, err := ksid.Parse(req.UserID)
	if err != nil {
		return nil, dto.BadRequest("invalid user id")
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	if id == caller.ID && !perms.HasExact(identity.PermAdmin) {
		return nil, dto.Conflict("cannot drop your own admin permission")
	}
	user, err := h.users.SetPermissions(id, perms)
	if err != nil {
		return nil, MapError(err)
	}
	slog.InfoContext(ctx, "Permissions changed", "by", caller.ID, "user", user.ID, "permissions", perms)
	return dto.NewUserResponse(user), nil
}
