package authapi

import (
	"context"

	"heirloom/cmd/internal/auth/session"
)

type sessionKey struct{}

// WithSession stores a resolved session on ctx.
func WithSession(ctx context.Context, s session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(session.Session)
	return s, ok
}
