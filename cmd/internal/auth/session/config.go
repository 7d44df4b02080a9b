package session

import (
	"fmt"
	"time"

	"heirloom/cmd/security/token"

	"github.com/caarlos0/env/v11"
)

// Config defines all runtime configuration for the session subsystem.
//
// Defaults live in the envDefault tags; DefaultConfig evaluates them against
// an empty environment.
type Config struct {
	AccessSecret      string `env:"HEIRLOOM_AUTH_ACCESS_SECRET"`
	RefreshSecret     string `env:"HEIRLOOM_AUTH_REFRESH_SECRET"`
	AllowSharedSecret bool   `env:"HEIRLOOM_AUTH_ALLOW_SHARED_SECRET" envDefault:"false"`
	// StoragePepper switches refresh-token storage digests to HMAC-SHA256.
	StoragePepper string `env:"HEIRLOOM_AUTH_STORAGE_PEPPER"`

	Issuer     string        `env:"HEIRLOOM_AUTH_ISSUER" envDefault:"heirloom"`
	AccessTTL  time.Duration `env:"HEIRLOOM_AUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"HEIRLOOM_AUTH_REFRESH_TTL" envDefault:"720h"`
	ClockSkew  time.Duration `env:"HEIRLOOM_AUTH_CLOCK_SKEW" envDefault:"30s"`

	AccessCookieName  string `env:"HEIRLOOM_AUTH_ACCESS_COOKIE" envDefault:"heirloom_access"`
	RefreshCookieName string `env:"HEIRLOOM_AUTH_REFRESH_COOKIE" envDefault:"heirloom_refresh"`
	CookieDomain      string `env:"HEIRLOOM_AUTH_COOKIE_DOMAIN"`
	CookiePath        string `env:"HEIRLOOM_AUTH_COOKIE_PATH" envDefault:"/"`
	CookieSecure      bool   `env:"HEIRLOOM_AUTH_COOKIE_SECURE" envDefault:"true"`

	// ReuseDetection revokes a whole family when an already rotated refresh
	// token is presented after ReuseGrace has elapsed since its rotation.
	ReuseDetection bool          `env:"HEIRLOOM_AUTH_REUSE_DETECTION" envDefault:"true"`
	ReuseGrace     time.Duration `env:"HEIRLOOM_AUTH_REUSE_GRACE" envDefault:"10s"`

	// EnforceSessionVersion rejects access tokens minted before the user's
	// session version was last bumped.
	EnforceSessionVersion bool `env:"HEIRLOOM_AUTH_ENFORCE_SESSION_VERSION" envDefault:"true"`
}

// DefaultConfig returns the tag defaults. Secrets are left empty.
func DefaultConfig() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - HEIRLOOM_AUTH_ACCESS_SECRET  (>= 32 bytes)
//   - HEIRLOOM_AUTH_REFRESH_SECRET (>= 32 bytes, different from the access secret
//     unless HEIRLOOM_AUTH_ALLOW_SHARED_SECRET=true)
//
// Returns an error matching ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates secrets, durations and cookie names.
func (c Config) Check() error {
	switch {
	case len(c.AccessSecret) < token.MinKeyBytes:
		return fmt.Errorf("%w: access secret must be at least %d bytes", ErrConfig, token.MinKeyBytes)
	case len(c.RefreshSecret) < token.MinKeyBytes:
		return fmt.Errorf("%w: refresh secret must be at least %d bytes", ErrConfig, token.MinKeyBytes)
	case c.AccessSecret == c.RefreshSecret && !c.AllowSharedSecret:
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return fmt.Errorf("%w: ttl must be > 0", ErrConfig)
	case c.RefreshTTL < c.AccessTTL:
		return fmt.Errorf("%w: refresh ttl shorter than access ttl", ErrConfig)
	case c.ClockSkew < 0 || c.ReuseGrace < 0:
		return fmt.Errorf("%w: negative duration", ErrConfig)
	case c.AccessCookieName == "" || c.RefreshCookieName == "" || c.AccessCookieName == c.RefreshCookieName:
		return fmt.Errorf("%w: cookie names must be non-empty and distinct", ErrConfig)
	}
	return nil
}

// TokenConfig maps the session config onto the codec's inputs.
func (c Config) TokenConfig() token.Config {
	return token.Config{
		AccessSecret:  []byte(c.AccessSecret),
		RefreshSecret: []byte(c.RefreshSecret),
		StoragePepper: []byte(c.StoragePepper),
		Issuer:        c.Issuer,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
		ClockSkew:     c.ClockSkew,
	}
}

// Cookies returns the cookie settings derived from c.
func (c Config) Cookies() Cookies {
	return Cookies{
		AccessName:  c.AccessCookieName,
		RefreshName: c.RefreshCookieName,
		Domain:      c.CookieDomain,
		Path:        c.CookiePath,
		Secure:      c.CookieSecure,
	}
}
