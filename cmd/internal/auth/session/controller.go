package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"heirloom/cmd/identity"
	"heirloom/cmd/identity/ids"
	"heirloom/cmd/internal/auth/refresh"
	"heirloom/cmd/security/password"
	"heirloom/cmd/security/token"
)

// Identity is the principal a session is issued for.
type Identity struct {
	UserID         string
	Email          string
	SessionVersion int
}

// Issued is a freshly minted token pair.
type Issued struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	FamilyID         string
	RecordID         string
	// Persisted is false when the refresh record could not be stored. The
	// cookies are still valid but the session cannot be revoked server-side.
	Persisted bool
}

// Rotated is the result of a successful refresh.
type Rotated struct {
	Issued
	User identity.User
}

// LogoutResult reports what Logout managed to revoke. UserID is empty when no
// cookie identified a user.
type LogoutResult struct {
	UserID  string
	Revoked int64
	Err     error
}

// Deps are the collaborators a Controller needs.
type Deps struct {
	Codec   *token.Codec
	Store   refresh.Store
	Users   identity.Directory
	Hasher  *password.Hasher
	Logger  *slog.Logger
	Metrics *Metrics
}

// Controller issues, rotates and revokes sessions.
type Controller struct {
	codec   *token.Codec
	store   refresh.Store
	users   identity.Directory
	hasher  *password.Hasher
	cookies Cookies
	log     *slog.Logger
	metrics *Metrics

	// versions is nil when users cannot bump session versions.
	versions identity.SessionVersioner

	reuseDetection bool
	reuseGrace     time.Duration
	enforceVersion bool

	// dummyHash is verified against when the user is unknown so that
	// Authenticate costs the same either way.
	dummyHash string
}

// NewController validates deps and builds a Controller.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Codec == nil || deps.Store == nil || deps.Users == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("%w: codec, store, users and hasher are required", ErrConfig)
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	dummy, err := deps.Hasher.DummyHash()
	if err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}
	versions, _ := deps.Users.(identity.SessionVersioner)

	return &Controller{
		codec:          deps.Codec,
		store:          deps.Store,
		users:          deps.Users,
		hasher:         deps.Hasher,
		cookies:        cfg.Cookies(),
		log:            log,
		metrics:        deps.Metrics,
		versions:       versions,
		reuseDetection: cfg.ReuseDetection,
		reuseGrace:     cfg.ReuseGrace,
		enforceVersion: cfg.EnforceSessionVersion,
		dummyHash:      dummy,
	}, nil
}

// Cookies returns the cookie settings the controller writes with.
func (c *Controller) Cookies() Cookies { return c.cookies }

// Login starts a new token family for id and sets both cookies on w.
//
// A failure to persist the refresh record is logged and reported through
// Issued.Persisted; it does not fail the login.
func (c *Controller) Login(ctx context.Context, w http.ResponseWriter, now time.Time, id Identity) (Issued, error) {
	if id.UserID == "" {
		return Issued{}, ErrInvalidIdentity
	}

	familyID, err := ids.NewFamilyID()
	if err != nil {
		return Issued{}, fmt.Errorf("session: family id: %w", err)
	}

	is, err := c.mint(now, id, familyID)
	if err != nil {
		c.metrics.login("error")
		return Issued{}, err
	}

	_, err = c.store.Insert(ctx, refresh.NewRecord{
		ID:        is.RecordID,
		UserID:    id.UserID,
		TokenHash: c.codec.HashForStorage(is.RefreshToken),
		FamilyID:  familyID,
		ExpiresAt: is.RefreshExpiresAt,
		CreatedAt: now,
	})
	if err != nil {
		c.log.Error("auth.login.persist.fail",
			"user_id", id.UserID,
			"family_id", familyID,
			"err", err,
		)
		c.metrics.login("degraded")
	} else {
		is.Persisted = true
		c.metrics.login("ok")
	}

	c.cookies.Set(w, now, is)
	return is, nil
}

// Authenticate checks email and password against the directory and logs the
// user in on success.
func (c *Controller) Authenticate(ctx context.Context, w http.ResponseWriter, now time.Time, email, pw string) (Issued, identity.User, error) {
	u, err := c.users.GetUserByEmail(ctx, email)
	switch {
	case identity.IsNotFound(err) || identity.IsInvalidInput(err):
		c.hasher.Verify(pw, c.dummyHash)
		c.metrics.login("invalid_credentials")
		return Issued{}, identity.User{}, ErrInvalidCredentials
	case err != nil:
		c.log.Error("auth.login.lookup.fail", "err", err)
		c.metrics.login("error")
		return Issued{}, identity.User{}, err
	}

	if !u.HasPassword() {
		c.hasher.Verify(pw, c.dummyHash)
		c.metrics.login("invalid_credentials")
		return Issued{}, identity.User{}, ErrInvalidCredentials
	}
	if !c.hasher.Verify(pw, *u.PasswordHash) {
		c.metrics.login("invalid_credentials")
		return Issued{}, identity.User{}, ErrInvalidCredentials
	}

	is, err := c.Login(ctx, w, now, Identity{UserID: u.ID, Email: u.Email, SessionVersion: u.SessionVersion})
	if err != nil {
		return Issued{}, identity.User{}, err
	}
	return is, u, nil
}

// Rotate redeems a refresh token for a new pair in the same family.
//
// Any reason the token cannot be redeemed yields an error matching
// ErrReauthenticate. Store and directory outages are returned as-is.
func (c *Controller) Rotate(ctx context.Context, w http.ResponseWriter, now time.Time, raw string) (Rotated, error) {
	if raw == "" {
		c.metrics.rotation("missing")
		return Rotated{}, ErrReauthenticate
	}

	claims, err := c.codec.VerifyRefresh(raw, now)
	if err != nil {
		c.log.Debug("auth.refresh.reject", "err", err)
		c.metrics.rotation("invalid")
		return Rotated{}, fmt.Errorf("%w: %w", ErrReauthenticate, err)
	}

	hash := c.codec.HashForStorage(raw)
	rec, err := c.store.FindActive(ctx, now, hash, claims.FamilyID)
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		c.detectReuse(ctx, now, hash, claims)
		c.metrics.rotation("not_active")
		return Rotated{}, ErrReauthenticate
	case err != nil:
		c.log.Error("auth.refresh.lookup.fail", "user_id", claims.UserID, "err", err)
		c.metrics.rotation("error")
		return Rotated{}, err
	}
	if rec.UserID != claims.UserID {
		c.log.Warn("auth.refresh.subject_mismatch", "record_user_id", rec.UserID, "token_user_id", claims.UserID)
		c.metrics.rotation("invalid")
		return Rotated{}, ErrReauthenticate
	}

	u, err := c.users.GetUserByID(ctx, claims.UserID)
	switch {
	case identity.IsNotFound(err) || identity.IsInvalidInput(err):
		c.metrics.rotation("user_not_found")
		return Rotated{}, ErrReauthenticate
	case err != nil:
		c.log.Error("auth.refresh.user.fail", "user_id", claims.UserID, "err", err)
		c.metrics.rotation("error")
		return Rotated{}, err
	}
	if c.enforceVersion && claims.SessionVersion < u.SessionVersion {
		c.revokeStaleFamily(ctx, now, u, rec.FamilyID, claims.SessionVersion)
		c.metrics.rotation("stale_version")
		return Rotated{}, ErrReauthenticate
	}

	is, err := c.mint(now, Identity{UserID: u.ID, Email: u.Email, SessionVersion: u.SessionVersion}, rec.FamilyID)
	if err != nil {
		c.metrics.rotation("error")
		return Rotated{}, err
	}

	_, err = c.store.Rotate(ctx, now, rec.ID, refresh.NewRecord{
		ID:        is.RecordID,
		UserID:    u.ID,
		TokenHash: c.codec.HashForStorage(is.RefreshToken),
		FamilyID:  rec.FamilyID,
		ExpiresAt: is.RefreshExpiresAt,
		CreatedAt: now,
	})
	switch {
	case errors.Is(err, refresh.ErrNotActive) || errors.Is(err, refresh.ErrFamilyMismatch):
		c.log.Debug("auth.refresh.race_lost", "user_id", u.ID, "record_id", rec.ID)
		c.metrics.rotation("race_lost")
		return Rotated{}, ErrReauthenticate
	case err != nil:
		c.log.Error("auth.refresh.persist.fail", "user_id", u.ID, "record_id", rec.ID, "err", err)
		c.metrics.rotation("error")
		return Rotated{}, err
	}

	is.Persisted = true
	c.metrics.rotation("ok")
	c.cookies.Set(w, now, is)
	return Rotated{Issued: is, User: u}, nil
}

// revokeStaleFamily retires a family started before the user's current
// session version. Failures are logged; the caller reauthenticates anyway.
func (c *Controller) revokeStaleFamily(ctx context.Context, now time.Time, u identity.User, familyID string, tokenVersion int) {
	n, err := c.store.RevokeFamily(ctx, now, familyID, refresh.ReasonSessionVersion)
	if err != nil {
		c.log.Error("auth.refresh.stale.revoke.fail", "user_id", u.ID, "family_id", familyID, "err", err)
		return
	}
	c.log.Info("auth.refresh.stale_version",
		"user_id", u.ID,
		"family_id", familyID,
		"reason", refresh.ReasonSessionVersion,
		"token_version", tokenVersion,
		"user_version", u.SessionVersion,
		"revoked", n,
	)
}

// EndAllSessions signs userID out everywhere: it bumps the session version,
// so outstanding access tokens stop resolving, revokes every refresh record,
// and clears the caller's cookies when w is non-nil.
func (c *Controller) EndAllSessions(ctx context.Context, w http.ResponseWriter, now time.Time, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidIdentity
	}
	if c.versions == nil {
		return 0, ErrUnsupported
	}

	v, err := c.versions.BumpSessionVersion(ctx, userID)
	if err != nil {
		c.log.Error("auth.sessions.end.bump.fail", "user_id", userID, "err", err)
		c.metrics.logout("error")
		return 0, err
	}
	c.cookies.Clear(w)

	n, err := c.store.RevokeAllForUser(ctx, now, userID, refresh.ReasonSessionVersion)
	if err != nil {
		// The bump alone already blocks rotation of every family.
		c.log.Error("auth.sessions.end.revoke.fail", "user_id", userID, "session_version", v, "err", err)
		c.metrics.logout("error")
		return 0, err
	}
	c.log.Info("auth.sessions.ended", "user_id", userID, "session_version", v, "revoked", n)
	c.metrics.logout("all")
	return n, nil
}

// detectReuse revokes the whole family when hash belongs to a token that was
// already rotated away more than reuseGrace ago. Inside the grace window the
// presenter is most likely the loser of a concurrent refresh.
func (c *Controller) detectReuse(ctx context.Context, now time.Time, hash string, claims token.RefreshClaims) {
	if !c.reuseDetection {
		return
	}
	old, err := c.store.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, refresh.ErrNotFound) {
			c.log.Error("auth.refresh.reuse.lookup.fail", "err", err)
		}
		return
	}
	if !old.Revoked || old.RevokeReason != refresh.ReasonRotated || old.FamilyID != claims.FamilyID {
		return
	}
	if old.RevokedAt != nil && now.Sub(*old.RevokedAt) < c.reuseGrace {
		return
	}

	n, err := c.store.RevokeFamily(ctx, now, old.FamilyID, refresh.ReasonReuseDetected)
	if err != nil {
		c.log.Error("auth.refresh.reuse.revoke.fail", "family_id", old.FamilyID, "err", err)
		return
	}
	c.log.Warn("auth.refresh.reuse_detected",
		"user_id", old.UserID,
		"family_id", old.FamilyID,
		"reason", refresh.ReasonReuseDetected,
		"revoked", n,
	)
	c.metrics.rotation("reuse_detected")
}

// Logout revokes every refresh record of the user named by the request's
// cookies and clears both cookies. It never fails; revocation problems are
// logged and reported in the result.
func (c *Controller) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, now time.Time) LogoutResult {
	defer c.cookies.Clear(w)

	userID := c.subject(r)
	if userID == "" {
		c.metrics.logout("anonymous")
		return LogoutResult{}
	}

	n, err := c.store.RevokeAllForUser(ctx, now, userID, refresh.ReasonLogout)
	if err != nil {
		c.log.Error("auth.logout.revoke.fail", "user_id", userID, "err", err)
		c.metrics.logout("error")
		return LogoutResult{UserID: userID, Err: err}
	}
	c.metrics.logout("ok")
	return LogoutResult{UserID: userID, Revoked: n}
}

// subject extracts the user ID from the refresh cookie, falling back to the
// access cookie. Expired tokens still identify their user.
func (c *Controller) subject(r *http.Request) string {
	if raw, ok := c.cookies.Refresh(r); ok {
		if uid, err := c.codec.SubjectOf(raw); err == nil {
			return uid
		}
	}
	if raw, ok := c.cookies.Access(r); ok {
		if uid, err := c.codec.SubjectOf(raw); err == nil {
			return uid
		}
	}
	return ""
}

func (c *Controller) mint(now time.Time, id Identity, familyID string) (Issued, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, fmt.Errorf("session: jti: %w", err)
	}

	access, accessExp, err := c.codec.SignAccess(now, id.UserID, id.Email, id.SessionVersion)
	if err != nil {
		c.log.Error("auth.token.sign.fail", "kind", token.TypeAccess, "err", err)
		return Issued{}, err
	}
	rt, refreshExp, err := c.codec.SignRefresh(now, id.UserID, familyID, jti, id.SessionVersion)
	if err != nil {
		c.log.Error("auth.token.sign.fail", "kind", token.TypeRefresh, "err", err)
		return Issued{}, err
	}

	return Issued{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rt,
		RefreshExpiresAt: refreshExp,
		FamilyID:         familyID,
		RecordID:         jti,
	}, nil
}
