package password

import (
	"errors"
	"fmt"
)

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrEmptyPassword    = errors.New("empty password")
	ErrInvalidHash      = errors.New("invalid password hash")
	ErrConfig           = errors.New("invalid password config")

	// ErrHashing is matched by every HashingError.
	ErrHashing = errors.New("password hashing failed")
)

// HashingError reports that a credential could not be hashed.
// Callers should surface it as an internal error.
type HashingError struct {
	Err error
}

func (e HashingError) Error() string {
	if e.Err == nil {
		return ErrHashing.Error()
	}
	return fmt.Sprintf("%s: %v", ErrHashing, e.Err)
}

func (e HashingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHashing}
	}
	return []error{ErrHashing, e.Err}
}
