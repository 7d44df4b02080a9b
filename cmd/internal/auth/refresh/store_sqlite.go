package refresh

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"heirloom/cmd/identity/ids"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store over database/sql with the modernc SQLite driver.
// Timestamps are stored as unix milliseconds and revoked as 0/1.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database whose schema has been migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteColumns = `id, user_id, token_hash, family_id, revoked, revoked_at, revoke_reason, expires_at, created_at`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) Insert(ctx context.Context, rec NewRecord) (Record, error) {
	return sqliteInsert(ctx, s.db, rec)
}

func sqliteInsert(ctx context.Context, db sqlExecer, rec NewRecord) (Record, error) {
	id := rec.ID
	if id == "" {
		var err error
		if id, err = ids.NewULID(rec.CreatedAt); err != nil {
			return Record{}, storeErr("insert", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, family_id,
			revoked, revoked_at, revoke_reason,
			expires_at, created_at
		) VALUES (?, ?, ?, ?, 0, NULL, NULL, ?, ?)
	`, id, rec.UserID, rec.TokenHash, rec.FamilyID, toMillis(rec.ExpiresAt), toMillis(rec.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicate
		}
		return Record{}, storeErr("insert", err)
	}

	out := rec.record(id)
	out.ExpiresAt = fromMillis(toMillis(rec.ExpiresAt))
	out.CreatedAt = fromMillis(toMillis(rec.CreatedAt))
	return out, nil
}

func (s *SQLiteStore) FindActive(ctx context.Context, now time.Time, tokenHash, familyID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM refresh_tokens
		WHERE token_hash = ?
		  AND family_id = ?
		  AND revoked = 0
		  AND expires_at > ?
	`, tokenHash, familyID, toMillis(now))

	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, storeErr("find_active", err)
	}
	return rec, nil
}

func (s *SQLiteStore) FindByHash(ctx context.Context, tokenHash string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM refresh_tokens
		WHERE token_hash = ?
	`, tokenHash)

	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, storeErr("find_by_hash", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Revoke(ctx context.Context, now time.Time, recordID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?, revoke_reason = ?
		WHERE id = ? AND revoked = 0
	`, toMillis(now), reason, recordID)
	if err != nil {
		return storeErr("revoke", err)
	}
	return nil
}

func (s *SQLiteStore) RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error) {
	return s.revokeWhere(ctx, "revoke_all_for_user", "user_id", userID, now, reason)
}

func (s *SQLiteStore) RevokeFamily(ctx context.Context, now time.Time, familyID, reason string) (int64, error) {
	return s.revokeWhere(ctx, "revoke_family", "family_id", familyID, now, reason)
}

// revokeWhere revokes live rows matching column = value. column is never user input.
func (s *SQLiteStore) revokeWhere(ctx context.Context, op, column, value string, now time.Time, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?, revoke_reason = ?
		WHERE `+column+` = ? AND revoked = 0
	`, toMillis(now), reason, value)
	if err != nil {
		return 0, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return n, nil
}

func (s *SQLiteStore) Rotate(ctx context.Context, now time.Time, oldID string, next NewRecord) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, storeErr("rotate", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID, familyID string
	err = tx.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?1, revoke_reason = 'rotated'
		WHERE id = ?2 AND revoked = 0 AND expires_at > ?1
		RETURNING user_id, family_id
	`, toMillis(now), oldID).Scan(&userID, &familyID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotActive
	}
	if err != nil {
		return Record{}, storeErr("rotate", err)
	}
	if userID != next.UserID || familyID != next.FamilyID {
		return Record{}, ErrFamilyMismatch
	}

	rec, err := sqliteInsert(ctx, tx, next)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, storeErr("rotate", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM refresh_tokens
		WHERE user_id = ?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, storeErr("list_by_user", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (Record, error) {
	var (
		rec       Record
		revoked   int64
		revokedAt sql.NullInt64
		reason    sql.NullString
		expiresAt int64
		createdAt int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.FamilyID,
		&revoked,
		&revokedAt,
		&reason,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		return Record{}, err
	}

	rec.Revoked = revoked != 0
	if revokedAt.Valid {
		t := fromMillis(revokedAt.Int64)
		rec.RevokedAt = &t
	}
	rec.RevokeReason = reason.String
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
