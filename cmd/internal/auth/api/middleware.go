package authapi

import (
	"errors"
	"net/http"

	"heirloom/cmd/internal/auth/session"
)

// RequireSession resolves the access cookie and enforces the caller contract:
//   - token_expired: rotate the refresh cookie silently, then continue
//   - token_invalid, user_not_found: log out (revoking server-side) and 401
//   - token_missing: 401
//   - Authenticated, Degraded: continue with the session on the context
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := h.now()

		sess := h.resolver.Resolve(ctx, r, now)
		if un, ok := sess.(session.Unauthenticated); ok {
			switch {
			case un.Reason.WantsRefresh():
				raw, _ := h.ctrl.Cookies().Refresh(r)
				rot, err := h.ctrl.Rotate(ctx, w, now, raw)
				if err != nil {
					if errors.Is(err, session.ErrReauthenticate) {
						h.ctrl.Cookies().Clear(w)
					}
					writeServiceError(w, h.log, "auth.session.refresh.fail", err)
					return
				}
				sess = h.resolver.ResolveToken(ctx, rot.AccessToken, now)
				if _, still := sess.(session.Unauthenticated); still {
					h.ctrl.Cookies().Clear(w)
					writeError(w, http.StatusUnauthorized, "reauthenticate", "session expired, please log in again")
					return
				}
			case un.Reason.ForcesLogout():
				h.ctrl.Logout(ctx, w, r, now)
				writeError(w, http.StatusUnauthorized, string(un.Reason), "session invalid, please log in again")
				return
			default:
				writeError(w, http.StatusUnauthorized, string(un.Reason), "authentication required")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}
