package password

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"HEIRLOOM_ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"HEIRLOOM_ARGON2_ITERATIONS"`
	Parallelism uint8  `env:"HEIRLOOM_ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"HEIRLOOM_ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"HEIRLOOM_ARGON2_KEY_LEN"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int `env:"HEIRLOOM_PASSWORD_MIN_LEN"`
	MaxLength int `env:"HEIRLOOM_PASSWORD_MAX_LEN"`
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `env:"HEIRLOOM_PASSWORD_REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the production baseline: 64 MiB, t=3, p=1.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - HEIRLOOM_PASSWORD_MIN_LEN
// - HEIRLOOM_PASSWORD_MAX_LEN
// - HEIRLOOM_PASSWORD_REJECT_VERY_WEAK (true/false)
// - HEIRLOOM_ARGON2_MEMORY_KIB
// - HEIRLOOM_ARGON2_ITERATIONS
// - HEIRLOOM_ARGON2_PARALLELISM
// - HEIRLOOM_ARGON2_SALT_LEN
// - HEIRLOOM_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates parameter ranges and policy ordering.
func (c Config) Check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024: // 8 MiB .. 1 GiB
		return fmt.Errorf("%w: memory_kib out of range [8192..1048576]", ErrConfig)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("%w: iterations out of range [1..20]", ErrConfig)
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("%w: parallelism out of range [1..64]", ErrConfig)
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("%w: salt_len out of range [8..64]", ErrConfig)
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("%w: key_len out of range [16..64]", ErrConfig)
	}

	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		return fmt.Errorf("%w: password length bounds out of range", ErrConfig)
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"%w: min_len(%d) > max_len(%d)",
			ErrConfig,
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}

	return nil
}
