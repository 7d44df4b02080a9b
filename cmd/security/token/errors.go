package token

import (
	"errors"
	"fmt"
)

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
	ErrConfig          = errors.New("invalid token config")

	// ErrSigning is matched by every SigningError.
	ErrSigning = errors.New("token signing failed")

	// Verification reasons. Every *VerifyError matches exactly one of these.
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenType      = errors.New("token type mismatch")
)

// SigningError reports that a token could not be produced.
type SigningError struct {
	Kind string // "access" or "refresh"
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSigning, e.Kind, e.Err)
}

func (e *SigningError) Unwrap() []error { return []error{ErrSigning, e.Err} }

// VerifyError carries the reason a token was rejected.
// Reason is one of ErrTokenMalformed, ErrTokenExpired, ErrTokenInvalid or ErrTokenType.
type VerifyError struct {
	Reason error
	Err    error
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *VerifyError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Expired reports whether err is a verification failure caused only by expiry.
func Expired(err error) bool {
	var ve *VerifyError
	return errors.As(err, &ve) && ve.Reason == ErrTokenExpired
}
