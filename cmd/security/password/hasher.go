package password

import (
	"crypto/rand"
	"io"
)

// Hasher is the credential hasher used by login flows.
// It never reports why a verification failed: every failure is a mismatch.
type Hasher struct {
	cfg  Config
	rand io.Reader
}

// NewHasher returns a Hasher bound to cfg.
func NewHasher(cfg Config) *Hasher {
	return &Hasher{cfg: cfg, rand: rand.Reader}
}

// Config returns the hasher's configuration.
func (h *Hasher) Config() Config { return h.cfg }

// Hash produces a PHC-formatted Argon2id hash of password.
// Policy violations are returned as-is; empty input and entropy failures
// are reported as HashingError.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", HashingError{Err: ErrEmptyPassword}
	}
	if err := h.cfg.Policy.Check(password); err != nil {
		return "", err
	}
	return h.hash(password)
}

// DummyHash hashes a random secret with the configured cost, skipping the
// policy. Verifying against it costs the same as verifying a real user.
func (h *Hasher) DummyHash() (string, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(h.rand, secret); err != nil {
		return "", HashingError{Err: err}
	}
	return h.hash(phcB64.EncodeToString(secret))
}

func (h *Hasher) hash(password string) (string, error) {
	salt := make([]byte, h.cfg.Params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", HashingError{Err: err}
	}
	return newPHC(password, salt, h.cfg.Params).String(), nil
}

// Verify reports whether password matches encoded.
// Malformed hashes and parameters above twice the configured cost yield false.
func (h *Hasher) Verify(password, encoded string) bool {
	ph, err := parsePHC(encoded)
	if err != nil || !ph.affordable(h.cfg.Params) {
		return false
	}
	return ph.matches(password)
}

// NeedsRehash reports whether encoded should be replaced by a fresh hash
// under the current parameters. Unparseable hashes always need one.
func (h *Hasher) NeedsRehash(encoded string) bool {
	ph, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return ph.weakerThan(h.cfg.Params)
}
