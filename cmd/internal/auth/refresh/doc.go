// Package refresh persists hashed refresh tokens grouped into rotation families.
//
// A Record is the only authority on whether a refresh token may still be
// redeemed; a valid signature alone is not enough. Records are revoked, never
// deleted, so the family chain stays available for audit.
//
// Rotation revokes the presented record and inserts its successor in one
// transaction. The revoke is a conditional update, so of two concurrent
// rotations of the same record exactly one succeeds and the other gets
// ErrNotActive.
package refresh
