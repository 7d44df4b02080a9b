package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Note: only trim + lower-case for now.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
