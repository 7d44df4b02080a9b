package refresh

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no usable record matches a lookup.
	ErrNotFound = errors.New("refresh record not found")

	// ErrNotActive is returned by Rotate when the old record was already
	// revoked or expired, including when a concurrent rotation won.
	ErrNotActive = errors.New("refresh record not active")

	// ErrFamilyMismatch is returned by Rotate when the successor does not
	// belong to the same user and family as the record it replaces.
	ErrFamilyMismatch = errors.New("refresh successor family mismatch")

	// ErrDuplicate is returned when a token hash is already stored.
	ErrDuplicate = errors.New("refresh token hash already stored")

	// ErrStoreUnavailable is matched by every StoreError.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// StoreError wraps a backend failure. It never wraps ErrNotFound or ErrNotActive.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("refresh store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
