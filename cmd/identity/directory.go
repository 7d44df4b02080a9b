package identity

import (
	"context"
	"time"
)

// User is heirloom's canonical security principal.
type User struct {
	ID    string
	Email string
	// PasswordHash is nil for accounts that sign in through an external provider.
	PasswordHash *string
	// SessionVersion is bumped to invalidate every outstanding access token.
	SessionVersion int
	CreatedAt      time.Time
}

// HasPassword reports whether the user can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Directory is the read interface the authentication core uses.
//
// A missing user yields an error matching ErrNotFound; a backend failure
// yields one matching ErrUnavailable.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// SessionVersioner is implemented by directories that can invalidate every
// outstanding session of a user at once.
type SessionVersioner interface {
	BumpSessionVersion(ctx context.Context, id string) (int, error)
}

// CreateUserInput describes a user to seed into a directory.
type CreateUserInput struct {
	Email        string
	PasswordHash *string
	Now          time.Time
}
