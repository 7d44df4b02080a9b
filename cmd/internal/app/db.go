package app

import (
	"context"
	"database/sql"
	"time"

	"heirloom/cmd/identity"
	"heirloom/cmd/internal/auth/refresh"
	"heirloom/cmd/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// userDirectory is the directory surface the app needs: reads for the
// session core, CreateUser for seeding.
type userDirectory interface {
	identity.Directory
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
}

// backend owns the persistence handles for one process.
type backend struct {
	name    string
	refresh refresh.Store
	users   userDirectory

	pool *pgxpool.Pool
	db   *sql.DB
}

// openBackend picks Postgres when a database URL is configured and SQLite
// otherwise. Both are migrated before use.
func openBackend(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	if cfg.DatabaseURL != "" {
		pool, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, storage.PostgresOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Migrate:  cfg.DBMigrate,
		})
		if err != nil {
			return nil, err
		}
		users, err := identity.NewPostgresDirectory(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres", "max_conns", cfg.DBMaxConns, "migrate", cfg.DBMigrate)
		return &backend{
			name:    "postgres",
			refresh: refresh.NewPostgresStore(pool),
			users:   users,
			pool:    pool,
		}, nil
	}

	db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	log.Info("db.enabled.sqlite", "path", cfg.SQLitePath)
	return &backend{
		name:    "sqlite",
		refresh: refresh.NewSQLiteStore(db),
		users:   identity.NewSQLDirectory(db),
		db:      db,
	}, nil
}

// Ping checks the backend within timeout.
func (b *backend) Ping(ctx context.Context, timeout time.Duration) error {
	if b.pool != nil {
		return storage.PingPool(ctx, b.pool, timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.db.PingContext(ctx)
}

// Close releases the backend's handles.
func (b *backend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
