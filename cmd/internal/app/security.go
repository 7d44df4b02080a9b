package app

import (
	"errors"

	"heirloom/cmd/internal/auth/session"
	"heirloom/cmd/security/token"
)

// ValidateSecurityConfig enforces heirloom's security policy at startup.
//
// Fail-fast: a production process never silently runs with insecure cookies
// or, when required, with unkeyed refresh-token digests.
func ValidateSecurityConfig(cfg Config, sess session.Config) error {
	if !cfg.Development() && !sess.CookieSecure {
		return errors.New("security policy: HEIRLOOM_AUTH_COOKIE_SECURE=false is only allowed with HEIRLOOM_ENV=development")
	}
	if !cfg.RequireStoragePepper {
		return nil
	}
	switch {
	case sess.StoragePepper == "":
		return errors.New("security policy: HEIRLOOM_REQUIRE_STORAGE_PEPPER=true but HEIRLOOM_AUTH_STORAGE_PEPPER is missing")
	case len(sess.StoragePepper) < token.MinKeyBytes:
		return errors.New("security policy: HEIRLOOM_AUTH_STORAGE_PEPPER is too short (min 32 bytes)")
	}
	return nil
}
