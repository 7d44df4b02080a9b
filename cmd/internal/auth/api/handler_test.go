package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"heirloom/cmd/identity"
	"heirloom/cmd/internal/auth/refresh"
	"heirloom/cmd/internal/auth/session"
	"heirloom/cmd/internal/storage"
	"heirloom/cmd/security/password"
	"heirloom/cmd/security/token"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

type harness struct {
	router http.Handler
	store  refresh.Store
	users  *identity.SQLDirectory
	cfg    session.Config
	now    time.Time
}

func newHarness(t *testing.T, apiCfg Config) *harness {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	scfg := session.DefaultConfig()
	scfg.AccessSecret = strings.Repeat("a", 32)
	scfg.RefreshSecret = strings.Repeat("r", 32)
	scfg.CookieSecure = false

	pcfg := password.DefaultConfig()
	pcfg.Params.MemoryKiB = 8 * 1024
	pcfg.Params.Iterations = 1

	codec, err := token.NewCodec(scfg.TokenConfig())
	require.NoError(t, err)

	hs := &harness{
		store: refresh.NewSQLiteStore(db),
		users: identity.NewSQLDirectory(db),
		cfg:   scfg,
		now:   time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}

	ctrl, err := session.NewController(scfg, session.Deps{
		Codec:  codec,
		Store:  hs.store,
		Users:  hs.users,
		Hasher: password.NewHasher(pcfg),
	})
	require.NoError(t, err)
	res := session.NewResolver(scfg, codec, hs.users, nil, nil)

	h, err := NewHandler(nil, apiCfg, ctrl, res, hs.store, WithClock(func() time.Time { return hs.now }))
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Register(r)
	hs.router = r

	hash, err := password.NewHasher(pcfg).Hash(testPassword)
	require.NoError(t, err)
	_, err = hs.users.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        "alice@example.com",
		PasswordHash: &hash,
		Now:          hs.now,
	})
	require.NoError(t, err)
	return hs
}

func (hs *harness) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	return rec
}

func (hs *harness) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := hs.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "alice@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return liveCookies(rec)
}

func liveCookies(rec *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			out = append(out, c)
		}
	}
	return out
}

func clearedCookies(rec *httptest.ResponseRecorder) int {
	n := 0
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			n++
		}
	}
	return n
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestLogin(t *testing.T) {
	hs := newHarness(t, DefaultConfig())

	rec := hs.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ALICE@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, liveCookies(rec), 2)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "alice@example.com", resp.User.Email)
	require.True(t, resp.Session.Persisted)
	require.NotContains(t, rec.Body.String(), liveCookies(rec)[0].Value)
}

func TestLogin_Rejections(t *testing.T) {
	hs := newHarness(t, DefaultConfig())

	rec := hs.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "alice@example.com", Password: "wrong password"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", errorCode(t, rec))
	require.Empty(t, rec.Result().Cookies())

	rec = hs.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "alice@example.com"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a", "password": "b", "extra": "c"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_json", errorCode(t, rec))

	rec = hs.do(t, http.MethodGet, "/auth/login", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogin_Throttled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginIPMax = 2
	cfg.LoginIPWindow = time.Minute
	hs := newHarness(t, cfg)

	bad := loginRequest{Email: "alice@example.com", Password: "wrong password"}
	for i := 0; i < 2; i++ {
		rec := hs.do(t, http.MethodPost, "/auth/login", bad, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := hs.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "alice@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	hs.now = hs.now.Add(time.Minute)
	hs.login(t)
}

func TestMe(t *testing.T) {
	hs := newHarness(t, DefaultConfig())

	rec := hs.do(t, http.MethodGet, "/auth/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_missing", errorCode(t, rec))

	cookies := hs.login(t)
	rec = hs.do(t, http.MethodGet, "/auth/me", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "alice@example.com", resp.User.Email)
	require.False(t, resp.Degraded)
}

func TestMe_SilentRefreshOnExpiry(t *testing.T) {
	hs := newHarness(t, DefaultConfig())
	cookies := hs.login(t)

	hs.now = hs.now.Add(hs.cfg.AccessTTL + hs.cfg.ClockSkew + time.Minute)
	rec := hs.do(t, http.MethodGet, "/auth/me", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, liveCookies(rec), 2)

	// The refresh cookie presented above was consumed.
	hs.now = hs.now.Add(time.Hour)
	rec = hs.do(t, http.MethodPost, "/auth/refresh", nil, cookies)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "reauthenticate", errorCode(t, rec))
	require.Equal(t, 2, clearedCookies(rec))
}

func TestMe_TamperedCookieForcesLogout(t *testing.T) {
	hs := newHarness(t, DefaultConfig())
	cookies := hs.login(t)

	var tampered []*http.Cookie
	for _, c := range cookies {
		cp := *c
		if cp.Name == hs.cfg.AccessCookieName {
			i := strings.LastIndex(cp.Value, ".") + 3
			b := []byte(cp.Value)
			if b[i] == 'A' {
				b[i] = 'B'
			} else {
				b[i] = 'A'
			}
			cp.Value = string(b)
		}
		tampered = append(tampered, &cp)
	}

	rec := hs.do(t, http.MethodGet, "/auth/me", nil, tampered)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_invalid", errorCode(t, rec))
	require.Equal(t, 2, clearedCookies(rec))

	u, err := hs.users.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	recs, err := hs.store.ListByUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, recs[0].Revoked)
}

func TestRefresh(t *testing.T) {
	hs := newHarness(t, DefaultConfig())

	rec := hs.do(t, http.MethodPost, "/auth/refresh", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	cookies := hs.login(t)
	hs.now = hs.now.Add(time.Minute)
	rec = hs.do(t, http.MethodPost, "/auth/refresh", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "alice@example.com", resp.User.Email)
	require.Len(t, liveCookies(rec), 2)
}

func TestLogout(t *testing.T) {
	hs := newHarness(t, DefaultConfig())

	rec := hs.do(t, http.MethodPost, "/auth/logout", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 2, clearedCookies(rec))

	first := hs.login(t)
	second := hs.login(t)

	rec = hs.do(t, http.MethodPost, "/auth/logout", nil, first)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 2, clearedCookies(rec))

	hs.now = hs.now.Add(time.Minute)
	rec = hs.do(t, http.MethodPost, "/auth/refresh", nil, second)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessions(t *testing.T) {
	hs := newHarness(t, DefaultConfig())
	cookies := hs.login(t)

	hs.now = hs.now.Add(time.Minute)
	rec := hs.do(t, http.MethodPost, "/auth/refresh", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = hs.do(t, http.MethodGet, "/auth/sessions", nil, liveCookies(rec))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	require.Equal(t, resp.Sessions[0].FamilyID, resp.Sessions[1].FamilyID)
	require.True(t, resp.Sessions[0].Revoked)
	require.Equal(t, refresh.ReasonRotated, resp.Sessions[0].RevokeReason)
	require.False(t, resp.Sessions[1].Revoked)
}

func TestLogoutAll(t *testing.T) {
	hs := newHarness(t, DefaultConfig())

	rec := hs.do(t, http.MethodPost, "/auth/logout-all", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	first := hs.login(t)
	second := hs.login(t)

	rec = hs.do(t, http.MethodPost, "/auth/logout-all", nil, first)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 2, clearedCookies(rec))

	var resp logoutAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 2, resp.Revoked)

	// The other device's still-unexpired access token no longer resolves.
	rec = hs.do(t, http.MethodGet, "/auth/me", nil, second)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_invalid", errorCode(t, rec))

	hs.now = hs.now.Add(time.Minute)
	rec = hs.do(t, http.MethodPost, "/auth/refresh", nil, second)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "reauthenticate", errorCode(t, rec))

	// A fresh login works and carries the new version.
	rec = hs.do(t, http.MethodGet, "/auth/me", nil, hs.login(t))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewHandler_RequiresDeps(t *testing.T) {
	_, err := NewHandler(nil, DefaultConfig(), nil, nil, nil)
	require.Error(t, err)
}
