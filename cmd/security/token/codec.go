package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyBytes is the minimum accepted length of a signing secret.
const MinKeyBytes = 32

// Config holds the codec's immutable inputs.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	// StoragePepper enables HMAC storage digests when non-empty.
	StoragePepper []byte

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ClockSkew is tolerated when checking exp.
	ClockSkew time.Duration
}

// Codec signs and verifies access and refresh tokens.
// It is safe for concurrent use; its keys never change after NewCodec.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	pepper     []byte

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration
}

// NewCodec validates cfg and copies its keys.
func NewCodec(cfg Config) (*Codec, error) {
	for _, k := range [][]byte{cfg.AccessSecret, cfg.RefreshSecret} {
		if len(k) == 0 {
			return nil, ErrHMACKeyMissing
		}
		if len(k) < MinKeyBytes {
			return nil, ErrHMACKeyTooShort
		}
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be > 0", ErrConfig)
	}
	if cfg.ClockSkew < 0 {
		return nil, fmt.Errorf("%w: clock skew must be >= 0", ErrConfig)
	}

	return &Codec{
		accessKey:  clone(cfg.AccessSecret),
		refreshKey: clone(cfg.RefreshSecret),
		pepper:     clone(cfg.StoragePepper),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		skew:       cfg.ClockSkew,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess mints an access token for the user, valid until the returned time.
func (c *Codec) SignAccess(now time.Time, userID, email string, sessionVersion int) (string, time.Time, error) {
	exp := now.Add(c.accessTTL)
	claims := AccessClaims{
		UserID:         userID,
		Email:          email,
		SessionVersion: sessionVersion,
		Type:           TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	if err != nil {
		return "", time.Time{}, &SigningError{Kind: TypeAccess, Err: err}
	}
	return s, exp, nil
}

// SignRefresh mints a refresh token in familyID with the given jti.
func (c *Codec) SignRefresh(now time.Time, userID, familyID, jti string, sessionVersion int) (string, time.Time, error) {
	exp := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		UserID:         userID,
		FamilyID:       familyID,
		SessionVersion: sessionVersion,
		Type:           TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", time.Time{}, &SigningError{Kind: TypeRefresh, Err: err}
	}
	return s, exp, nil
}

// VerifyAccess checks signature, expiry and type of an access token.
func (c *Codec) VerifyAccess(raw string, now time.Time) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(raw, now, c.accessKey, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.Type != TypeAccess {
		return AccessClaims{}, &VerifyError{Reason: ErrTokenType}
	}
	if claims.UserID == "" {
		return AccessClaims{}, &VerifyError{Reason: ErrTokenInvalid, Err: errors.New("missing uid")}
	}
	return claims, nil
}

// VerifyRefresh checks signature, expiry and type of a refresh token.
func (c *Codec) VerifyRefresh(raw string, now time.Time) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(raw, now, c.refreshKey, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.Type != TypeRefresh {
		return RefreshClaims{}, &VerifyError{Reason: ErrTokenType}
	}
	if claims.UserID == "" || claims.FamilyID == "" || claims.ID == "" {
		return RefreshClaims{}, &VerifyError{Reason: ErrTokenInvalid, Err: errors.New("missing uid, fid or jti")}
	}
	return claims, nil
}

func (c *Codec) parse(raw string, now time.Time, key []byte, claims jwt.Claims) error {
	if strings.Count(raw, ".") != 2 {
		return &VerifyError{Reason: ErrTokenMalformed}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.skew),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &VerifyError{Reason: ErrTokenMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerifyError{Reason: ErrTokenExpired, Err: err}
	default:
		return &VerifyError{Reason: ErrTokenInvalid, Err: err}
	}
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// SubjectOf returns the user ID of a refresh or access token whose signature
// is valid, ignoring expiry. It is meant for logout, where an expired but
// authentic token still identifies whose records to revoke.
func (c *Codec) SubjectOf(raw string) (string, error) {
	if strings.Count(raw, ".") != 2 {
		return "", &VerifyError{Reason: ErrTokenMalformed}
	}

	var lastErr error
	for _, k := range []struct {
		key  []byte
		kind string
	}{{c.refreshKey, TypeRefresh}, {c.accessKey, TypeAccess}} {
		var claims struct {
			UserID string `json:"uid"`
			Type   string `json:"type"`
			jwt.RegisteredClaims
		}
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return k.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
		if err != nil {
			lastErr = err
			continue
		}
		if claims.Type != k.kind || claims.UserID == "" {
			lastErr = ErrTokenType
			continue
		}
		if c.issuer != "" && claims.Issuer != c.issuer {
			lastErr = jwt.ErrTokenInvalidIssuer
			continue
		}
		return claims.UserID, nil
	}
	return "", &VerifyError{Reason: ErrTokenInvalid, Err: lastErr}
}
