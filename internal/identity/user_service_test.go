package identity

import (
	"errors"
	"testing"
)

func TestUserService(t *testing.T) {
	dir := t.TempDir()
	service, err := NewUserService(dir)
	if err != nil {
		t.Fatal(err)
	}

	user, err := service.Create("Test@Example.com", "password123", "Test User", Permissions{PermSales, PermSales, PermCash})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if user.Email != "test@example.com" {
		t.Errorf("Expected normalized email, got %s", user.Email)
	}
	if len(user.Permissions) != 2 || !user.Permissions.Has(PermSales) || !user.Permissions.Has(PermCash) {
		t.Errorf("Permissions = %v", user.Permissions)
	}
	if user.Permissions.Has(PermSalesAll) {
		t.Error("sales_all must not be implied by sales")
	}

	t.Run("Create errors", func(t *testing.T) {
		tests := []struct {
			name     string
			email    string
			password string
			perms    Permissions
			want     error
		}{
			{"duplicate", "test@example.com", "password123", nil, ErrExists},
			{"bad email", "nope", "password123", nil, ErrInvalidInput},
			{"short password", "a@b.com", "short", nil, ErrInvalidInput},
			{"unknown permission", "a@b.com", "password123", Permissions{"root"}, ErrInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := service.Create(tt.email, tt.password, "", tt.perms); !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
			})
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		got, err := service.Authenticate("test@example.com", "password123")
		if err != nil {
			t.Fatalf("Authentication failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("Expected user ID %s, got %s", user.ID, got.ID)
		}
		if _, err := service.Authenticate("test@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("wrong password err = %v", err)
		}
		if _, err := service.Authenticate("who@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("unknown user err = %v", err)
		}
	})

	t.Run("EnsureAccount", func(t *testing.T) {
		got, created, err := service.EnsureAccount("test@example.com", "otherpassword", "", Permissions{PermAdmin})
		if err != nil {
			t.Fatal(err)
		}
		if created || got.ID != user.ID || got.Permissions.HasExact(PermAdmin) {
			t.Errorf("existing account modified: created=%v %+v", created, got)
		}
		fresh, created, err := service.EnsureAccount("new@example.com", "password123", "", Permissions{PermWorkshop})
		if err != nil {
			t.Fatal(err)
		}
		if !created || fresh.Name != "new" {
			t.Errorf("created=%v %+v", created, fresh)
		}
	})

	t.Run("SetPermissions", func(t *testing.T) {
		got, err := service.SetPermissions(user.ID, Permissions{PermAdmin})
		if err != nil {
			t.Fatal(err)
		}
		if !got.Permissions.Has(PermBudgets) {
			t.Error("admin must imply every permission")
		}
	})

	t.Run("Reload", func(t *testing.T) {
		s2, err := NewUserService(dir)
		if err != nil {
			t.Fatal(err)
		}
		if got := s2.Count(); got != 2 {
			t.Errorf("Count() = %d, want 2", got)
		}
		u, err := s2.GetByEmail("TEST@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if !u.Permissions.HasExact(PermAdmin) {
			t.Errorf("permissions not persisted: %v", u.Permissions)
		}
		if _, err := s2.Get(u.ID); err != nil {
			t.Error(err)
		}
		n := 0
		for range s2.Iter() {
			n++
		}
		if n != 2 {
			t.Errorf("Iter() yielded %d users", n)
		}
	})
}
