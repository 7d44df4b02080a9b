// Package app wires the heirloom server runtime: config, logging, storage,
// the session core and its HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"heirloom/cmd/identity"
	authapi "heirloom/cmd/internal/auth/api"
	"heirloom/cmd/internal/auth/session"
	"heirloom/cmd/security/password"
	"heirloom/cmd/security/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the heirloom server runtime: it owns the HTTP server and the
// storage handles behind it.
type App struct {
	cfg Config
	log Logger

	backend *backend
	hasher  *password.Hasher
	auth    *authapi.Handler
	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
// Session, password and auth API settings are read from the environment.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	apiCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfigs(ctx, cfg, sessCfg, pwCfg, apiCfg, log)
}

// NewWithConfigs is New with every sub-config supplied by the caller.
func NewWithConfigs(ctx context.Context, cfg Config, sessCfg session.Config, pwCfg password.Config, apiCfg authapi.Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Development() {
		sessCfg.CookieSecure = false
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(sessCfg.TokenConfig())
	if err != nil {
		return nil, err
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := session.NewMetrics(reg)

	hasher := password.NewHasher(pwCfg)
	ctrl, err := session.NewController(sessCfg, session.Deps{
		Codec:   codec,
		Store:   be.refresh,
		Users:   be.users,
		Hasher:  hasher,
		Logger:  log,
		Metrics: metrics,
	})
	if err != nil {
		_ = be.Close()
		return nil, err
	}
	resolver := session.NewResolver(sessCfg, codec, be.users, log, metrics)

	auth, err := authapi.NewHandler(log, apiCfg, ctrl, resolver, be.refresh)
	if err != nil {
		_ = be.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		backend: be,
		hasher:  hasher,
		auth:    auth,
	}
	a.handler = newRouter(a, reg)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// CreateUser hashes pw and adds a user to the configured directory.
func (a *App) CreateUser(ctx context.Context, email, pw string) (identity.User, error) {
	hash, err := a.hasher.Hash(pw)
	if err != nil {
		return identity.User{}, err
	}
	u, err := a.backend.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		return identity.User{}, fmt.Errorf("create user: %w", err)
	}
	a.log.Info("user.created", "user_id", u.ID)
	return u, nil
}

// Close releases storage handles.
func (a *App) Close() error {
	return a.backend.Close()
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "backend", a.backend.name, "env", a.cfg.Env)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		_ = a.Close()
		return err
	}

	if err := a.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
