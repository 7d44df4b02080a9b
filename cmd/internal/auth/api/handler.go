package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"heirloom/cmd/internal/auth/refresh"
	"heirloom/cmd/internal/auth/session"

	"github.com/go-chi/chi/v5"
)

// Handler wires HTTP auth endpoints to the session controller and resolver.
type Handler struct {
	log *slog.Logger
	cfg Config

	ctrl     *session.Controller
	resolver *session.Resolver
	records  refresh.Store

	throttle *loginThrottle
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides the handler's time source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, ctrl *session.Controller, resolver *session.Resolver, records refresh.Store, opts ...HandlerOption) (*Handler, error) {
	if ctrl == nil || resolver == nil || records == nil {
		return nil, errors.New("auth: controller, resolver and refresh store are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		ctrl:     ctrl,
		resolver: resolver,
		records:  records,
		throttle: newLoginThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto r.
func (h *Handler) Register(r chi.Router) {
	if h == nil || r == nil {
		return
	}
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/me", h.handleMe)
			r.Get("/sessions", h.handleSessions)
			r.Post("/logout-all", h.handleLogoutAll)
		})
	})
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()
	key := throttleKey(clientIP(r, h.cfg.TrustProxy))

	if blocked, retryAfter := h.throttle.check(key, now); blocked {
		h.log.Warn("auth.login.rate_limited", "ip", key, "retry_after", retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	issued, u, err := h.ctrl.Authenticate(ctx, w, now, email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.throttle.fail(key, now)
		}
		writeServiceError(w, h.log, "auth.login.fail", err)
		return
	}
	h.throttle.reset(key)

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(u),
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.ctrl.Cookies().Refresh(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "reauthenticate", "refresh cookie missing")
		return
	}

	rot, err := h.ctrl.Rotate(r.Context(), w, h.now(), raw)
	if err != nil {
		if errors.Is(err, session.ErrReauthenticate) {
			h.ctrl.Cookies().Clear(w)
		}
		writeServiceError(w, h.log, "auth.refresh.fail", err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		User:    toUserResponse(rot.User),
		Session: toSessionResponse(rot.Issued),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	res := h.ctrl.Logout(r.Context(), w, r, h.now())
	if res.UserID != "" {
		h.log.Info("auth.logout", "user_id", res.UserID, "reason", refresh.ReasonLogout, "revoked", res.Revoked)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	switch s := sess.(type) {
	case session.Authenticated:
		writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(s.User)})
	case session.Degraded:
		writeJSON(w, http.StatusOK, meResponse{User: claimsUserResponse(s.Claims), Degraded: true})
	default:
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	}
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	uid, ok := session.UserID(sess)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	recs, err := h.records.ListByUser(r.Context(), uid)
	if err != nil {
		writeServiceError(w, h.log, "auth.sessions.list.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: toRecordResponses(recs)})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	uid, ok := session.UserID(sess)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	n, err := h.ctrl.EndAllSessions(r.Context(), w, h.now(), uid)
	if err != nil {
		writeServiceError(w, h.log, "auth.logout_all.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: n})
}
