package authapi

import "time"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	SessionVersion int        `json:"session_version"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// sessionResponse describes the cookies just set. Raw tokens never leave
// the cookie jar.
type sessionResponse struct {
	FamilyID         string    `json:"family_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Persisted        bool      `json:"persisted"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User userResponse `json:"user"`
	// Degraded is set when the user directory could not be read and User
	// only reflects the access token's claims.
	Degraded bool `json:"degraded,omitempty"`
}

type refreshRecordResponse struct {
	ID           string     `json:"id"`
	FamilyID     string     `json:"family_id"`
	Revoked      bool       `json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

type sessionsResponse struct {
	Sessions []refreshRecordResponse `json:"sessions"`
}

type logoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}
