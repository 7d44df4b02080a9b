package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HashForStorage returns the digest under which a raw refresh token is persisted.
// With a storage pepper configured it is HMAC-SHA256, otherwise plain SHA-256.
func (c *Codec) HashForStorage(raw string) string {
	if len(c.pepper) == 0 {
		return HashSHA256Hex(raw)
	}
	return HashHMACSHA256Hex(raw, c.pepper)
}
