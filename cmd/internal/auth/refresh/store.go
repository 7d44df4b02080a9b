package refresh

import (
	"context"
	"time"
)

// Revoke reasons recorded on a record.
const (
	ReasonRotated       = "rotated"
	ReasonLogout        = "logout"
	ReasonReuseDetected = "reuse_detected"
	ReasonAdmin         = "admin"
	// ReasonSessionVersion marks records revoked because the user's session
	// version moved past the family's.
	ReasonSessionVersion = "session_version"
)

// Record mirrors a refresh_tokens row.
type Record struct {
	ID           string
	UserID       string
	TokenHash    string
	FamilyID     string
	Revoked      bool
	RevokedAt    *time.Time
	RevokeReason string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Active reports whether the record is redeemable at now.
func (r Record) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// NewRecord describes a record to insert. ID is generated when empty.
type NewRecord struct {
	ID        string
	UserID    string
	TokenHash string
	FamilyID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store abstracts persistence for refresh records.
type Store interface {
	// Insert appends a new non-revoked record.
	Insert(ctx context.Context, rec NewRecord) (Record, error)

	// FindActive returns the record for tokenHash in familyID only if it is
	// neither revoked nor expired at now. Otherwise ErrNotFound.
	FindActive(ctx context.Context, now time.Time, tokenHash, familyID string) (Record, error)

	// FindByHash returns the record for tokenHash in any state.
	FindByHash(ctx context.Context, tokenHash string) (Record, error)

	// Revoke revokes one record. Revoking an already revoked or unknown record is a no-op.
	Revoke(ctx context.Context, now time.Time, recordID, reason string) error

	// RevokeAllForUser revokes every live record of a user across families.
	RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error)

	// RevokeFamily revokes every live record in a family.
	RevokeFamily(ctx context.Context, now time.Time, familyID, reason string) (int64, error)

	// Rotate revokes oldID with ReasonRotated and inserts next as one unit.
	// It returns ErrNotActive if oldID is no longer active at now.
	Rotate(ctx context.Context, now time.Time, oldID string, next NewRecord) (Record, error)

	// ListByUser returns all records of a user, oldest first.
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}

func (n NewRecord) record(id string) Record {
	return Record{
		ID:        id,
		UserID:    n.UserID,
		TokenHash: n.TokenHash,
		FamilyID:  n.FamilyID,
		ExpiresAt: n.ExpiresAt,
		CreatedAt: n.CreatedAt,
	}
}
