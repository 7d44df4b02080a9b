package session

import (
	"heirloom/cmd/identity"
	"heirloom/cmd/security/token"
)

// Reason classifies why a request is unauthenticated.
type Reason string

const (
	ReasonTokenMissing Reason = "token_missing"
	ReasonTokenInvalid Reason = "token_invalid"
	ReasonTokenExpired Reason = "token_expired"
	ReasonUserNotFound Reason = "user_not_found"
)

// ForcesLogout reports whether the caller should clear cookies and send the
// user to login.
func (r Reason) ForcesLogout() bool {
	return r == ReasonTokenInvalid || r == ReasonUserNotFound
}

// WantsRefresh reports whether the caller should attempt a silent refresh.
func (r Reason) WantsRefresh() bool { return r == ReasonTokenExpired }

// Session is the per-request outcome of resolution. It is one of
// Authenticated, Degraded or Unauthenticated.
type Session interface {
	session()
}

// Authenticated carries a verified token and the user it refers to.
type Authenticated struct {
	User   identity.User
	Claims token.AccessClaims
}

// Degraded carries a verified token whose user could not be loaded because
// the directory was unavailable. Only the claims are trustworthy.
type Degraded struct {
	Claims token.AccessClaims
	Err    error
}

// Unauthenticated carries the failure reason.
type Unauthenticated struct {
	Reason Reason
}

func (Authenticated) session()   {}
func (Degraded) session()        {}
func (Unauthenticated) session() {}

// UserID returns the user a session refers to, if any.
func UserID(s Session) (string, bool) {
	switch v := s.(type) {
	case Authenticated:
		return v.User.ID, true
	case Degraded:
		return v.Claims.UserID, true
	default:
		return "", false
	}
}
