package token

import "github.com/golang-jwt/jwt/v5"

// Token type discriminators.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID         string `json:"uid"`
	Email          string `json:"email"`
	SessionVersion int    `json:"sv"`
	Type           string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The jti lives in
// RegisteredClaims.ID. SessionVersion is the user's version when the
// family was started; it is carried unchanged across rotations.
type RefreshClaims struct {
	UserID         string `json:"uid"`
	FamilyID       string `json:"fid"`
	SessionVersion int    `json:"sv"`
	Type           string `json:"type"`
	jwt.RegisteredClaims
}

// JTI returns the unique token identifier.
func (c RefreshClaims) JTI() string { return c.ID }
