package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/oauth"
	"github.com/MrEthical07/edgeauth/password"
	"github.com/MrEthical07/edgeauth/session"
	"github.com/MrEthical07/edgeauth/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	testSecret   = "httpapi-test-secret-0123456789abcdef"
	testPassword = "correct-password-123"
)

type users struct {
	mu   sync.Mutex
	byID map[string]edgeauth.UserRecord
}

func newUsers(t *testing.T) *users {
	t.Helper()
	h, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	hash, err := h.Hash(testPassword)
	require.NoError(t, err)
	return &users{byID: map[string]edgeauth.UserRecord{
		"u-alice": {ID: "u-alice", Email: "alice@example.com", Name: "Alice", Role: session.RoleUser, PasswordHash: hash},
		"u-root":  {ID: "u-root", Email: "root@example.com", Name: "Root", Role: session.RoleAdmin, PasswordHash: hash},
	}}
}

func (u *users) GetUserByID(_ context.Context, id string) (edgeauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if rec, ok := u.byID[id]; ok {
		return rec, nil
	}
	return edgeauth.UserRecord{}, edgeauth.ErrNotFound
}

func (u *users) GetUserByEmail(_ context.Context, email string) (edgeauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, rec := range u.byID {
		if rec.Email == email {
			return rec, nil
		}
	}
	return edgeauth.UserRecord{}, edgeauth.ErrNotFound
}

func (u *users) UpsertOAuthUser(_ context.Context, ident edgeauth.ExternalIdentity) (edgeauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, rec := range u.byID {
		if rec.Email == ident.Email {
			return rec, nil
		}
	}
	rec := edgeauth.UserRecord{ID: "u-" + ident.Provider + "-" + ident.Subject, Email: ident.Email, Name: ident.Name, Role: session.RoleUser}
	u.byID[rec.ID] = rec
	return rec, nil
}

func (u *users) remove(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.byID, id)
}

// flakyStore fails lookups while down is set.
type flakyStore struct {
	*tokenstore.MemoryStore
	mu   sync.Mutex
	down bool
}

func (f *flakyStore) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyStore) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyStore) FindValid(ctx context.Context, key string) (string, bool, error) {
	if f.isDown() {
		return "", false, tokenstore.ErrUnavailable
	}
	return f.MemoryStore.FindValid(ctx, key)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if f.isDown() {
		return tokenstore.ErrUnavailable
	}
	return f.MemoryStore.Ping(ctx)
}

type harness struct {
	t       *testing.T
	handler http.Handler
	users   *users
	store   *flakyStore
	cfg     edgeauth.Config
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarnessConfig(t, nil, opts...)
}

func newHarnessConfig(t *testing.T, mutate func(*edgeauth.Config), opts ...Option) *harness {
	t.Helper()
	cfg := edgeauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.Secret = testSecret
	cfg.Store.Backend = edgeauth.StoreMemory
	cfg.Session.UpdateAge = 0
	cfg.Audit.Enabled = false
	cfg.Password = edgeauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	if mutate != nil {
		mutate(&cfg)
	}

	u := newUsers(t)
	store := &flakyStore{MemoryStore: tokenstore.NewMemoryStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := edgeauth.New().
		WithConfig(cfg).
		WithStore(store).
		WithUserProvider(u).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	pages := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "page "+r.URL.Path)
	})
	srv, err := New(e, append([]Option{WithLogger(logger), WithPages(pages)}, opts...)...)
	require.NoError(t, err)
	return &harness{t: t, handler: srv.Handler(), users: u, store: store, cfg: cfg}
}

func (h *harness) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signIn(email string) (authResponse, *http.Cookie) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/auth/signin", `{"email":"`+email+`","password":"`+testPassword+`"}`)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var body authResponse
	require.NoError(h.t, json.NewDecoder(rec.Body).Decode(&body))
	return body, cookieNamed(rec, h.cfg.Edge.CookieName)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorText(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func refreshBody(token string) string {
	b, _ := json.Marshal(refreshRequest{RefreshToken: token})
	return string(b)
}

func TestSignInAndRefresh(t *testing.T) {
	h := newHarness(t)
	first, sessionCookie := h.signIn("alice@example.com")
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)
	assert.Equal(t, edgeauth.PublicUser{ID: "u-alice", Email: "alice@example.com", Name: "Alice"}, first.User)

	rec := h.do(http.MethodPost, "/auth/refresh", refreshBody(first.RefreshToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var next authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&next))
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)
	assert.Equal(t, "u-alice", next.User.ID)
	assert.NotNil(t, cookieNamed(rec, h.cfg.Edge.CookieName))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = h.do(http.MethodPost, "/auth/refresh", refreshBody(first.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired refresh token", errorText(t, rec))
}

func TestRefreshStatuses(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.signIn("alice@example.com")
	root, _ := h.signIn("root@example.com")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"refreshToken":`, http.StatusBadRequest},
		{"wrong type", `{"refreshToken":42}`, http.StatusBadRequest},
		{"empty token", `{}`, http.StatusBadRequest},
		{"missing body", "", http.StatusBadRequest},
		{"unknown token", refreshBody("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"), http.StatusUnauthorized},
		{"garbage token", refreshBody("not a token"), http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := h.store.Len()
			rec := h.do(http.MethodPost, "/auth/refresh", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, before, h.store.Len(), "failed refresh must not create records")
		})
	}

	t.Run("owner gone", func(t *testing.T) {
		h.users.remove("u-root")
		rec := h.do(http.MethodPost, "/auth/refresh", refreshBody(root.RefreshToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", errorText(t, rec))
	})

	t.Run("store down", func(t *testing.T) {
		h.store.setDown(true)
		defer h.store.setDown(false)
		rec := h.do(http.MethodPost, "/auth/refresh", refreshBody(alice.RefreshToken))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, "Internal server error", errorText(t, rec))
	})

	t.Run("token survives outage", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/refresh", refreshBody(alice.RefreshToken))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRefreshFromCookieWhenBodyAbsent(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/signin", `{"email":"alice@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	refreshCookie := cookieNamed(rec, h.cfg.Edge.CookieName+".refresh")
	require.NotNil(t, refreshCookie)
	assert.Equal(t, "/auth/", refreshCookie.Path)

	rec = h.do(http.MethodPost, "/auth/refresh", "", refreshCookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignInRejections(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/auth/signin", `{"email":"alice@example.com","password":"wrong-password-000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", errorText(t, rec))

	rec = h.do(http.MethodPost, "/auth/signin", `{"email":"nobody@example.com","password":"whatever-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/auth/signin", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email and password are required", errorText(t, rec))
}

func TestSignOut(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.signIn("alice@example.com")

	rec := h.do(http.MethodPost, "/auth/signout", refreshBody(alice.RefreshToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := cookieNamed(rec, h.cfg.Edge.CookieName)
	require.NotNil(t, cleared)
	assert.True(t, cleared.MaxAge < 0)

	rec = h.do(http.MethodPost, "/auth/refresh", refreshBody(alice.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/auth/signout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGateRedirects(t *testing.T) {
	h := newHarness(t)
	_, sessionCookie := h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/dashboard", "", sessionCookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page /dashboard", rec.Body.String())

	rec = h.do(http.MethodGet, "/login", "", sessionCookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRevokedSessionRedirectsWithSessionExpired(t *testing.T) {
	h := newHarness(t)
	alice, sessionCookie := h.signIn("alice@example.com")
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/auth/signout", refreshBody(alice.RefreshToken)).Code)

	rec := h.do(http.MethodGet, "/posts/1", "", sessionCookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "SessionExpired", loc.Query().Get("error"))
	assert.Equal(t, "/posts/1", loc.Query().Get("callbackUrl"))

	degraded := cookieNamed(rec, h.cfg.Edge.CookieName)
	require.NotNil(t, degraded, "degraded credential should be written back")
}

func TestSessionEndpoint(t *testing.T) {
	h := newHarness(t)
	_, sessionCookie := h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/api/session", "", sessionCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var body sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "u-alice", body.UserID)
	assert.Equal(t, session.RoleUser, body.Role)
	assert.True(t, body.ExpiresAt.After(time.Now()))

	rec = h.do(http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	h := newHarness(t)
	_, userCookie := h.signIn("alice@example.com")
	_, adminCookie := h.signIn("root@example.com")
	_, _ = h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/api/admin/overview", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/admin/overview", "", userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Admin access required", errorText(t, rec))

	rec = h.do(http.MethodGet, "/api/admin/overview", "", adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview overviewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&overview))
	assert.Equal(t, uint64(3), overview.Counters["edgeauth_signin_success_total"])
	assert.Equal(t, uint64(1), overview.Counters["edgeauth_admin_denied_total"])
	assert.True(t, overview.StoreUp)

	rec = h.do(http.MethodPost, "/api/admin/users/u-alice/revoke", "", userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/admin/users/u-alice/revoke", "", adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var revoked map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&revoked))
	assert.Equal(t, 2, revoked["removed"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	_, userCookie := h.signIn("alice@example.com")
	_, adminCookie := h.signIn("root@example.com")

	rec := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodGet, "/metrics", "", userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/metrics", "", adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edgeauth_signin_success_total 2")
	assert.Contains(t, rec.Body.String(), "edgeauth_store_up 1")

	h.store.setDown(true)
	rec = h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestPublicMetrics(t *testing.T) {
	h := newHarnessConfig(t, func(cfg *edgeauth.Config) { cfg.Metrics.Public = true })
	rec := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edgeauth_store_up 1")

	h = newHarnessConfig(t, func(cfg *edgeauth.Config) { cfg.Metrics.Enabled = false })
	rec = h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusFound, rec.Code, "without the exporter /metrics is an ordinary gated page")
}

func TestWrongMethod(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/auth/signin", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", errorText(t, rec))
}

func TestNonCanonicalPathsAreGated(t *testing.T) {
	h := newHarness(t)
	_, sessionCookie := h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/auth/../dashboard", "")
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/static/..%2fdashboard", "", sessionCookie)
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	for _, path := range []string{"/healthz-internal/users", "/favicon.icon/admin", "/auth"} {
		rec = h.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?callbackUrl="), path)
	}
}

func TestAccessLogRequestID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

type fakeIdP struct {
	*httptest.Server
	email string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	f := &fakeIdP{email: "carol@example.com"}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" || r.Form.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "c-1", "email": f.email, "email_verified": true, "name": "Carol"})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func oauthHarness(t *testing.T) (*harness, *fakeIdP) {
	t.Helper()
	idp := newFakeIdP(t)
	reg, err := oauth.NewRegistry(edgeauth.OAuthConfig{Providers: map[string]edgeauth.OAuthProviderConfig{
		"corp": {
			ClientID:    "client",
			RedirectURL: "https://app.example.com/auth/callback/corp",
			AuthURL:     idp.URL + "/authorize",
			TokenURL:    idp.URL + "/token",
			UserInfoURL: idp.URL + "/userinfo",
		},
	}}, oauth.WithHTTPClient(idp.Client()))
	require.NoError(t, err)
	return newHarness(t, WithOAuth(reg)), idp
}

func startOAuth(t *testing.T, h *harness, callback string) (state string, flow *http.Cookie) {
	t.Helper()
	rec := h.do(http.MethodGet, "/auth/oauth/corp?callbackUrl="+url.QueryEscape(callback), "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", loc.Path)
	flow = cookieNamed(rec, oauthCookieName)
	require.NotNil(t, flow)
	return loc.Query().Get("state"), flow
}

func TestOAuthRoundTrip(t *testing.T) {
	h, _ := oauthHarness(t)
	state, flow := startOAuth(t, h, "/posts/9")

	rec := h.do(http.MethodGet, "/auth/callback/corp?code=good-code&state="+url.QueryEscape(state), "", flow)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/posts/9", rec.Header().Get("Location"))
	sessionCookie := cookieNamed(rec, h.cfg.Edge.CookieName)
	require.NotNil(t, sessionCookie)
	assert.NotNil(t, cookieNamed(rec, h.cfg.Edge.CookieName+".refresh"))

	rec = h.do(http.MethodGet, "/api/session", "", sessionCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "u-corp-c-1")
}

func TestOAuthRejectsBadState(t *testing.T) {
	h, _ := oauthHarness(t)
	_, flow := startOAuth(t, h, "/")

	rec := h.do(http.MethodGet, "/auth/callback/corp?code=good-code&state=forged", "", flow)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?error=OAuthCallback", rec.Header().Get("Location"))
	assert.Nil(t, cookieNamed(rec, h.cfg.Edge.CookieName))

	rec = h.do(http.MethodGet, "/auth/callback/corp?code=good-code&state=x", "")
	assert.Equal(t, "/login?error=OAuthCallback", rec.Header().Get("Location"))
}

func TestOAuthProviderDenial(t *testing.T) {
	h, _ := oauthHarness(t)
	state, flow := startOAuth(t, h, "/")
	rec := h.do(http.MethodGet, "/auth/callback/corp?error=access_denied&state="+url.QueryEscape(state), "", flow)
	assert.Equal(t, "/login?error=OAuthCallback", rec.Header().Get("Location"))
}

func TestOAuthOpenRedirectBlocked(t *testing.T) {
	h, _ := oauthHarness(t)
	state, flow := startOAuth(t, h, "//evil.example.com/x")
	rec := h.do(http.MethodGet, "/auth/callback/corp?code=good-code&state="+url.QueryEscape(state), "", flow)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestOAuthUnknownProvider(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/auth/oauth/facebook", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown identity provider", errorText(t, rec))
}

func TestSafeCallback(t *testing.T) {
	for raw, want := range map[string]string{
		"":                  "/home",
		"/posts/1?x=2":      "/posts/1?x=2",
		"//evil.com":        "/home",
		"https://evil.com/": "/home",
		`/\evil.com`:        "/home",
		"relative":          "/home",
	} {
		assert.Equal(t, want, safeCallback(raw, "/home"), raw)
	}
}

func TestNewRejectsNilEngine(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
