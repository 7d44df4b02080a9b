package session

import "errors"

var (
	// ErrReauthenticate is returned by Rotate when the refresh token cannot be
	// redeemed for any reason other than a store failure. The caller must send
	// the user back to login; it must not retry.
	ErrReauthenticate = errors.New("re-authentication required")

	// ErrInvalidCredentials is returned by Authenticate on unknown email,
	// missing password, or password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// ErrInvalidIdentity is returned by Login when the identity has no user ID.
var ErrInvalidIdentity = errors.New("login identity requires a user id")

// ErrUnsupported is returned by EndAllSessions when the directory cannot
// bump session versions.
var ErrUnsupported = errors.New("session: directory does not support session versions")
