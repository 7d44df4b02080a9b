package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"heirloom/cmd/identity"
	"heirloom/cmd/internal/auth/refresh"
	"heirloom/cmd/internal/storage"
	"heirloom/cmd/security/password"
	"heirloom/cmd/security/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

const testPassword = "correct horse battery staple"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSecret = strings.Repeat("a", 32)
	cfg.RefreshSecret = strings.Repeat("r", 32)
	cfg.CookieSecure = false
	return cfg
}

func cheapHasher() *password.Hasher {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return password.NewHasher(cfg)
}

type fixture struct {
	cfg     Config
	codec   *token.Codec
	store   refresh.Store
	users   *identity.SQLDirectory
	hasher  *password.Hasher
	metrics *Metrics
	ctrl    *Controller
	res     *Resolver
}

type fixtureOption func(*fixture)

func withStore(wrap func(refresh.Store) refresh.Store) fixtureOption {
	return func(f *fixture) { f.store = wrap(f.store) }
}

func withConfig(mut func(*Config)) fixtureOption {
	return func(f *fixture) { mut(&f.cfg) }
}

func withHasher(h *password.Hasher) fixtureOption {
	return func(f *fixture) { f.hasher = h }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		cfg:     testConfig(),
		store:   refresh.NewSQLiteStore(db),
		users:   identity.NewSQLDirectory(db),
		hasher:  cheapHasher(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.codec, err = token.NewCodec(f.cfg.TokenConfig())
	require.NoError(t, err)

	f.ctrl, err = NewController(f.cfg, Deps{
		Codec:   f.codec,
		Store:   f.store,
		Users:   f.users,
		Hasher:  f.hasher,
		Metrics: f.metrics,
	})
	require.NoError(t, err)

	f.res = NewResolver(f.cfg, f.codec, f.users, nil, f.metrics)
	return f
}

func (f *fixture) seedUser(t *testing.T, email string) identity.User {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	u, err := f.users.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        email,
		PasswordHash: &hash,
		Now:          t0,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, u identity.User, now time.Time) Issued {
	t.Helper()
	is, err := f.ctrl.Login(context.Background(), nil, now, Identity{
		UserID:         u.ID,
		Email:          u.Email,
		SessionVersion: u.SessionVersion,
	})
	require.NoError(t, err)
	return is
}

func (f *fixture) records(t *testing.T, userID string) []refresh.Record {
	t.Helper()
	recs, err := f.store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	return recs
}

// requestWith returns a request carrying every cookie set on rec.
func requestWith(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			r.AddCookie(c)
		}
	}
	return r
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

// tamper flips one character in the middle of the signature segment.
func tamper(raw string) string {
	i := strings.LastIndex(raw, ".") + (len(raw)-strings.LastIndex(raw, "."))/2
	b := []byte(raw)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

type failingStore struct {
	refresh.Store
	failInsert bool
	failFind   bool
	failRevoke bool
}

func (s failingStore) Insert(ctx context.Context, rec refresh.NewRecord) (refresh.Record, error) {
	if s.failInsert {
		return refresh.Record{}, &refresh.StoreError{Op: "insert", Err: context.DeadlineExceeded}
	}
	return s.Store.Insert(ctx, rec)
}

func (s failingStore) FindActive(ctx context.Context, now time.Time, hash, familyID string) (refresh.Record, error) {
	if s.failFind {
		return refresh.Record{}, &refresh.StoreError{Op: "find_active", Err: context.DeadlineExceeded}
	}
	return s.Store.FindActive(ctx, now, hash, familyID)
}

func (s failingStore) RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error) {
	if s.failRevoke {
		return 0, &refresh.StoreError{Op: "revoke_all_for_user", Err: context.DeadlineExceeded}
	}
	return s.Store.RevokeAllForUser(ctx, now, userID, reason)
}

type downDirectory struct{}

func (downDirectory) GetUserByID(context.Context, string) (identity.User, error) {
	return identity.User{}, identity.OpError{Op: "get_user_by_id", Kind: identity.ErrUnavailable, Err: context.DeadlineExceeded}
}

func (downDirectory) GetUserByEmail(context.Context, string) (identity.User, error) {
	return identity.User{}, identity.OpError{Op: "get_user_by_email", Kind: identity.ErrUnavailable, Err: context.DeadlineExceeded}
}
