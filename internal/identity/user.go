// Package identity manages user accounts and their permission flags.
package identity

import (
	"errors"
	"net/mail"
	"slices"
	"time"

	"github.com/maruel/ksid"
)

// User is an account, without its credentials.
type User struct {
	ID          ksid.ID     `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
	Created     time.Time   `json:"created"`
	Modified    time.Time   `json:"modified"`
}

// userStorage is the row persisted in users.jsonl.
type userStorage struct {
	User
	PasswordHash string `json:"password_hash"`
}

func (u *userStorage) Clone() *userStorage {
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

func (u *userStorage) Key() string {
	return u.ID.String()
}

func (u *userStorage) Validate() error {
	if u.ID.IsZero() {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

func validEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}
