package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"heirloom/cmd/identity"
	"heirloom/cmd/security/token"
)

// Resolver classifies the access token carried by a request.
type Resolver struct {
	codec          *token.Codec
	users          identity.Directory
	cookies        Cookies
	enforceVersion bool
	log            *slog.Logger
	metrics        *Metrics
}

// NewResolver builds a Resolver. A nil logger falls back to slog.Default().
func NewResolver(cfg Config, codec *token.Codec, users identity.Directory, log *slog.Logger, m *Metrics) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		codec:          codec,
		users:          users,
		cookies:        cfg.Cookies(),
		enforceVersion: cfg.EnforceSessionVersion,
		log:            log,
		metrics:        m,
	}
}

// Resolve reads the access cookie from r and classifies it.
func (s *Resolver) Resolve(ctx context.Context, r *http.Request, now time.Time) Session {
	raw, _ := s.cookies.Access(r)
	return s.ResolveToken(ctx, raw, now)
}

// ResolveToken classifies a raw access token.
func (s *Resolver) ResolveToken(ctx context.Context, raw string, now time.Time) Session {
	sess := s.resolve(ctx, raw, now)
	switch v := sess.(type) {
	case Authenticated:
		s.metrics.resolution("authenticated")
	case Degraded:
		s.metrics.resolution("degraded")
	case Unauthenticated:
		s.metrics.resolution(string(v.Reason))
	}
	return sess
}

func (s *Resolver) resolve(ctx context.Context, raw string, now time.Time) Session {
	if raw == "" {
		return Unauthenticated{Reason: ReasonTokenMissing}
	}

	claims, err := s.codec.VerifyAccess(raw, now)
	if err != nil {
		reason := ReasonTokenInvalid
		if token.Expired(err) {
			reason = ReasonTokenExpired
		}
		s.log.Debug("session.resolve.reject", "reason", reason, "err", err)
		return Unauthenticated{Reason: reason}
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	switch {
	case identity.IsNotFound(err) || identity.IsInvalidInput(err):
		s.log.Debug("session.resolve.user_not_found", "user_id", claims.UserID)
		return Unauthenticated{Reason: ReasonUserNotFound}
	case err != nil:
		s.log.Warn("session.resolve.degraded", "user_id", claims.UserID, "err", err)
		return Degraded{Claims: claims, Err: err}
	}

	if s.enforceVersion && claims.SessionVersion < user.SessionVersion {
		s.log.Debug("session.resolve.stale_version",
			"user_id", user.ID, "token_sv", claims.SessionVersion, "user_sv", user.SessionVersion)
		return Unauthenticated{Reason: ReasonTokenInvalid}
	}

	return Authenticated{User: user, Claims: claims}
}
