package authapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfig is returned for invalid auth API configuration.
var ErrConfig = errors.New("invalid auth api config")

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool  `env:"HEIRLOOM_AUTH_TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes int64 `env:"HEIRLOOM_AUTH_MAX_BODY_BYTES" envDefault:"1048576"`

	// LoginIPMax failed logins per LoginIPWindow are tolerated from one IP.
	// Zero disables throttling.
	LoginIPMax    int           `env:"HEIRLOOM_AUTH_LOGIN_IP_MAX" envDefault:"20"`
	LoginIPWindow time.Duration `env:"HEIRLOOM_AUTH_LOGIN_IP_WINDOW" envDefault:"5m"`
}

// DefaultConfig returns the tag defaults.
func DefaultConfig() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// LoadConfigFromEnv loads auth API config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	switch {
	case cfg.MaxBodyBytes <= 0:
		return Config{}, fmt.Errorf("%w: max body bytes must be > 0", ErrConfig)
	case cfg.LoginIPMax < 0:
		return Config{}, fmt.Errorf("%w: login ip max must be >= 0", ErrConfig)
	case cfg.LoginIPMax > 0 && cfg.LoginIPWindow <= 0:
		return Config{}, fmt.Errorf("%w: login ip window must be > 0", ErrConfig)
	}
	return cfg, nil
}
