// Package auth checks Basic credentials against users from configuration.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"rolerag/config"
	"rolerag/internal/domain"
	"rolerag/internal/port"
)

type user struct {
	hash []byte
	role domain.Role
}

// Store is an in-memory user table. It is read-only after construction.
type Store struct {
	users map[string]user
	// dummy is compared against when the user does not exist, so unknown
	// and known usernames cost the same.
	dummy []byte
}

var _ port.Authenticator = (*Store)(nil)

// NewStore builds the user table. Plain-text passwords are hashed with cost,
// or bcrypt.DefaultCost when cost is zero.
func NewStore(users []config.UserConfig, cost int, logger *slog.Logger) (*Store, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("rolerag-invalid-user"), cost)
	if err != nil {
		return nil, err
	}
	s := &Store{users: make(map[string]user, len(users)), dummy: dummy}

	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("auth user with empty username")
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate auth user %q", u.Username)
		}

		role, ok := domain.ParseRole(u.Role)
		if !ok {
			logger.Warn("unknown role in user config, using most restrictive access",
				"username", u.Username, "role", u.Role, "resolved", role)
		}

		var hash []byte
		switch {
		case u.PasswordHash != "":
			hash = []byte(u.PasswordHash)
			if _, err := bcrypt.Cost(hash); err != nil {
				return nil, fmt.Errorf("invalid password_hash for %q: %w", u.Username, err)
			}
		case u.Password != "":
			hash, err = bcrypt.GenerateFromPassword([]byte(u.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for %q: %w", u.Username, err)
			}
		default:
			return nil, fmt.Errorf("auth user %q has no password", u.Username)
		}

		s.users[u.Username] = user{hash: hash, role: role}
	}
	return s, nil
}

// Authenticate returns the principal for valid credentials, or
// domain.ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) (domain.Principal, error) {
	u, ok := s.users[username]
	if !ok {
		bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return domain.Principal{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return domain.Principal{}, domain.ErrInvalidCredentials
	}
	return domain.Principal{Username: username, Role: u.role}, nil
}

// Len returns the number of configured users.
func (s *Store) Len() int {
	return len(s.users)
}

// HashPassword returns a bcrypt hash suitable for a password_hash entry.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
