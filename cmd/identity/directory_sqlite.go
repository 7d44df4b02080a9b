package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SQLDirectory implements Directory over database/sql (SQLite schema:
// created_at in unix milliseconds).
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory wraps an open, migrated database.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if strings.TrimSpace(id) == "" {
		return User{}, invalid(op, "missing id")
	}
	return d.getOne(ctx, op, `WHERE id = ?`, id)
}

func (d *SQLDirectory) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	return d.getOne(ctx, op, `WHERE email = ?`, norm)
}

func (d *SQLDirectory) getOne(ctx context.Context, op, where, arg string) (User, error) {
	var (
		u         User
		hash      sql.NullString
		createdAt int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, session_version, created_at FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Email, &hash, &u.SessionVersion, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, unavailable(op, err)
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return u, nil
}

// CreateUser inserts a user with a fresh ULID and session version 1.
func (d *SQLDirectory) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	u, err := newUser(op, in)
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = time.UnixMilli(u.CreatedAt.UTC().UnixMilli()).UTC()

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, session_version, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.SessionVersion, u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, unavailable(op, err)
	}
	return u, nil
}

// BumpSessionVersion increments the user's session version and returns the new value.
func (d *SQLDirectory) BumpSessionVersion(ctx context.Context, id string) (int, error) {
	const op = "identity.BumpSessionVersion"

	var v int
	err := d.db.QueryRowContext(ctx,
		`UPDATE users SET session_version = session_version + 1 WHERE id = ? RETURNING session_version`,
		id,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return 0, unavailable(op, err)
	}
	return v, nil
}
