package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid app config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"HEIRLOOM_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel string `env:"HEIRLOOM_LOG_LEVEL" envDefault:"info"`
	// LogFormat is "json" or "pretty".
	LogFormat string `env:"HEIRLOOM_LOG_FORMAT" envDefault:"json"`
	// Env is "production" or "development". Development relaxes cookie Secure.
	Env string `env:"HEIRLOOM_ENV" envDefault:"production"`

	ReadHeaderTimeout time.Duration `env:"HEIRLOOM_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HEIRLOOM_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HEIRLOOM_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HEIRLOOM_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HEIRLOOM_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"HEIRLOOM_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// DatabaseURL selects Postgres. When empty, SQLitePath is used.
	DatabaseURL string `env:"HEIRLOOM_DATABASE_URL"`
	DBMaxConns  int32  `env:"HEIRLOOM_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"HEIRLOOM_DB_MIN_CONNS" envDefault:"0"`
	DBMigrate   bool   `env:"HEIRLOOM_DB_MIGRATE" envDefault:"true"`
	SQLitePath  string `env:"HEIRLOOM_SQLITE_PATH" envDefault:"heirloom.db"`

	ReadinessTimeout time.Duration `env:"HEIRLOOM_READINESS_TIMEOUT" envDefault:"2s"`

	// RequireStoragePepper refuses to start unless refresh-token digests are
	// HMAC-keyed.
	RequireStoragePepper bool `env:"HEIRLOOM_REQUIRE_STORAGE_PEPPER" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates invariants env parsing cannot express.
func (c Config) Check() error {
	switch {
	case strings.TrimSpace(c.HTTPAddr) == "":
		return fmt.Errorf("%w: http addr is required", ErrConfig)
	case c.DatabaseURL == "" && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: either database url or sqlite path is required", ErrConfig)
	case c.DBMaxConns < 0 || c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns):
		return fmt.Errorf("%w: invalid db pool bounds", ErrConfig)
	}
	switch c.Env {
	case "production", "development":
	default:
		return fmt.Errorf("%w: unknown env %q", ErrConfig, c.Env)
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfig, c.LogFormat)
	}
	return nil
}

// Development reports whether the runtime runs in development mode.
func (c Config) Development() bool { return c.Env == "development" }
