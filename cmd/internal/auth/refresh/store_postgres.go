package refresh

import (
	"context"
	"errors"
	"time"

	"heirloom/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by PostgresStore.
// *pgxpool.Pool and pgxmock pools both satisfy it.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL (refresh_tokens).
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a Postgres-backed refresh store.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgColumns = `id, user_id, token_hash, family_id, revoked, revoked_at, revoke_reason, expires_at, created_at`

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert appends a new non-revoked record.
func (s *PostgresStore) Insert(ctx context.Context, rec NewRecord) (Record, error) {
	return pgInsert(ctx, s.db, rec)
}

func pgInsert(ctx context.Context, db pgExecer, rec NewRecord) (Record, error) {
	id := rec.ID
	if id == "" {
		var err error
		if id, err = ids.NewULID(rec.CreatedAt); err != nil {
			return Record{}, storeErr("insert", err)
		}
	}

	_, err := db.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, family_id,
			revoked, revoked_at, revoke_reason,
			expires_at, created_at
		) VALUES (
			$1, $2, $3, $4,
			false, NULL, NULL,
			$5, $6
		)
	`, id, rec.UserID, rec.TokenHash, rec.FamilyID, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicate
		}
		return Record{}, storeErr("insert", err)
	}

	return rec.record(id), nil
}

// FindActive returns a live record for tokenHash within familyID.
func (s *PostgresStore) FindActive(ctx context.Context, now time.Time, tokenHash, familyID string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+pgColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
		  AND family_id = $2
		  AND revoked = false
		  AND expires_at > $3
	`, tokenHash, familyID, now)

	rec, err := scanPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, storeErr("find_active", err)
	}
	return rec, nil
}

// FindByHash returns the record for tokenHash regardless of state.
func (s *PostgresStore) FindByHash(ctx context.Context, tokenHash string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+pgColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)

	rec, err := scanPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, storeErr("find_by_hash", err)
	}
	return rec, nil
}

// Revoke revokes a single record (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, recordID, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = true,
		    revoked_at = $2,
		    revoke_reason = $3
		WHERE id = $1
		  AND revoked = false
	`, recordID, now, reason)
	if err != nil {
		return storeErr("revoke", err)
	}
	return nil
}

// RevokeAllForUser revokes every live record for a user (idempotent).
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = true,
		    revoked_at = $2,
		    revoke_reason = $3
		WHERE user_id = $1
		  AND revoked = false
	`, userID, now, reason)
	if err != nil {
		return 0, storeErr("revoke_all_for_user", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeFamily revokes every live record in a family (idempotent).
func (s *PostgresStore) RevokeFamily(ctx context.Context, now time.Time, familyID, reason string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = true,
		    revoked_at = $2,
		    revoke_reason = $3
		WHERE family_id = $1
		  AND revoked = false
	`, familyID, now, reason)
	if err != nil {
		return 0, storeErr("revoke_family", err)
	}
	return tag.RowsAffected(), nil
}

// Rotate revokes oldID and inserts next in one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, oldID string, next NewRecord) (Record, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Record{}, storeErr("rotate", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID, familyID string
	err = tx.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = true,
		    revoked_at = $2,
		    revoke_reason = 'rotated'
		WHERE id = $1
		  AND revoked = false
		  AND expires_at > $2
		RETURNING user_id, family_id
	`, oldID, now).Scan(&userID, &familyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotActive
	}
	if err != nil {
		return Record{}, storeErr("rotate", err)
	}
	if userID != next.UserID || familyID != next.FamilyID {
		return Record{}, ErrFamilyMismatch
	}

	rec, err := pgInsert(ctx, tx, next)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, storeErr("rotate", err)
	}
	return rec, nil
}

// ListByUser returns all records of a user, oldest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+pgColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, storeErr("list_by_user", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPG(rows)
		if err != nil {
			return nil, storeErr("list_by_user", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_by_user", err)
	}
	return out, nil
}

func scanPG(row pgx.Row) (Record, error) {
	var (
		rec    Record
		reason *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.FamilyID,
		&rec.Revoked,
		&rec.RevokedAt,
		&reason,
		&rec.ExpiresAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if reason != nil {
		rec.RevokeReason = *reason
	}
	return rec, nil
}
