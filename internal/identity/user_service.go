package identity

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/tallerdb/internal/jsonldb"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrExists is returned when the email is already registered.
	ErrExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned by Authenticate.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned for malformed account data.
	ErrInvalidInput = errors.New("invalid account data")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// UserService handles user management and authentication.
type UserService struct {
	table   *jsonldb.Table[*userStorage]
	byEmail *jsonldb.UniqueIndex[string, *userStorage]
	// mu serializes the check-then-insert of Create.
	mu sync.Mutex
}

// NewUserService opens the users table under dataDir.
func NewUserService(dataDir string) (*UserService, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil { //nolint:gosec // G301: data directory
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	table, err := jsonldb.NewTable[*userStorage](filepath.Join(dbDir, "users.jsonl"))
	if err != nil {
		return nil, err
	}
	return &UserService{
		table:   table,
		byEmail: jsonldb.NewUniqueIndex(table, func(u *userStorage) string { return u.Email }),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a new user.
func (s *UserService) Create(email, password, name string, perms Permissions) (*User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	perms, err := NewPermissions(perms...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail.Get(email); ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, email)
	}
	now := time.Now().UTC()
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u := &userStorage{
		User: User{
			ID:          ksid.NewID(),
			Email:       email,
			Name:        name,
			Permissions: perms,
			Created:     now,
			Modified:    now,
		},
		PasswordHash: string(hash),
	}
	if err := s.table.Append(u); err != nil {
		return nil, err
	}
	user := u.User
	return &user, nil
}

// EnsureAccount returns the account for email, creating it when missing.
// created reports whether a new account was made; an existing account keeps
// its password and permissions.
func (s *UserService) EnsureAccount(email, password, name string, perms Permissions) (user *User, created bool, err error) {
	if u, err := s.GetByEmail(email); err == nil {
		return u, false, nil
	}
	u, err := s.Create(email, password, name, perms)
	if errors.Is(err, ErrExists) {
		// Lost a race with another creator.
		u, err = s.GetByEmail(email)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(id ksid.ID) (*User, error) {
	u, ok := s.table.Get(id.String())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &u.User, nil
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(email string) (*User, error) {
	u, ok := s.byEmail.Get(normalizeEmail(email))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	return &u.User, nil
}

// Authenticate verifies user credentials.
func (s *UserService) Authenticate(email, password string) (*User, error) {
	u, ok := s.byEmail.Get(normalizeEmail(email))
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u.User, nil
}

// SetPermissions replaces the permission set of a user.
func (s *UserService) SetPermissions(id ksid.ID, perms Permissions) (*User, error) {
	perms, err := NewPermissions(perms...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	u, err := s.table.Modify(id.String(), func(u *userStorage) error {
		u.Permissions = perms
		u.Modified = time.Now().UTC()
		return nil
	})
	if errors.Is(err, jsonldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &u.User, nil
}

// Iter returns all users in creation order.
func (s *UserService) Iter() iter.Seq[*User] {
	return func(yield func(*User) bool) {
		for u := range s.table.Iter() {
			if !yield(&u.User) {
				return
			}
		}
	}
}

// Count returns the number of users.
func (s *UserService) Count() int {
	return s.table.Len()
}
