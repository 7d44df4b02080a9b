package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"heirloom/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used by PostgresDirectory.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory implements Directory over PostgreSQL.
//
// The pool is owned by the caller; the directory never closes it.
// The schema identifier is validated and quoted.
type PostgresDirectory struct {
	db     Querier
	schema string
}

// PostgresOption configures the directory.
type PostgresOption func(*PostgresDirectory) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(db Querier, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{db: db, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.db == nil {
		return nil, fmt.Errorf("identity: nil querier")
	}
	return d, nil
}

func (d *PostgresDirectory) users() string {
	return pgx.Identifier{d.schema, "users"}.Sanitize()
}

// GetUserByID loads a user by ID.
func (d *PostgresDirectory) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if strings.TrimSpace(id) == "" {
		return User{}, invalid(op, "missing id")
	}
	return d.getOne(ctx, op, `WHERE id = $1`, id)
}

// GetUserByEmail loads a user by normalized email.
func (d *PostgresDirectory) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	return d.getOne(ctx, op, `WHERE email = $1`, norm)
}

func (d *PostgresDirectory) getOne(ctx context.Context, op, where string, arg string) (User, error) {
	var u User
	err := d.db.QueryRow(ctx,
		`SELECT id, email, password_hash, session_version, created_at
		   FROM `+d.users()+` `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.SessionVersion, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, unavailable(op, err)
	}
	return u, nil
}

// CreateUser inserts a user with a fresh ULID and session version 1.
func (d *PostgresDirectory) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	u, err := newUser(op, in)
	if err != nil {
		return User{}, err
	}

	_, err = d.db.Exec(ctx,
		`INSERT INTO `+d.users()+` (id, email, password_hash, session_version, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.SessionVersion, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, unavailable(op, err)
	}
	return u, nil
}

// BumpSessionVersion increments the user's session version and returns the new value.
func (d *PostgresDirectory) BumpSessionVersion(ctx context.Context, id string) (int, error) {
	const op = "identity.BumpSessionVersion"

	var v int
	err := d.db.QueryRow(ctx,
		`UPDATE `+d.users()+` SET session_version = session_version + 1
		  WHERE id = $1
		  RETURNING session_version`,
		id,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return 0, unavailable(op, err)
	}
	return v, nil
}

func newUser(op string, in CreateUserInput) (User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, invalid(op, "invalid email")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:             id,
		Email:          email,
		PasswordHash:   in.PasswordHash,
		SessionVersion: 1,
		CreatedAt:      now,
	}, nil
}
