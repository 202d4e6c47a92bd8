package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/masivos/admin-gateway/internal/config"
)

type fakeIdP struct {
	srv       *httptest.Server
	refreshes int32
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600}`))
		case "refresh_token":
			atomic.AddInt32(&idp.refreshes, 1)
			w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"sub":"auth0|42","email":"ana@example.com","name":"Ana","picture":"https://img/ana.png"}`))
	})
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func testAuthConfig() config.AuthConfig {
	cfg := config.Default().Auth
	cfg.Enabled = true
	cfg.Domain = "tenant.example.com"
	cfg.ClientID = "client-1"
	cfg.ClientSecret = "secret-1"
	cfg.Audience = "https://api.masivos"
	return cfg
}

func newTestManager(t *testing.T, store SessionStore) (*Manager, *fakeIdP) {
	t.Helper()
	idp := newFakeIdP(t)
	m := NewManager(testAuthConfig(), "http://localhost:3000/", store,
		WithEndpoints(idp.srv.URL+"/authorize", idp.srv.URL+"/oauth/token", idp.srv.URL+"/userinfo"),
		WithHTTPClient(idp.srv.Client()),
	)
	return m, idp
}

func TestHandleLoginRedirects(t *testing.T) {
	m, idp := newTestManager(t, NewMemoryStore())

	rec := httptest.NewRecorder()
	m.HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), idp.srv.URL+"/authorize"))
	assert.Equal(t, "client-1", loc.Query().Get("client_id"))
	assert.Equal(t, "https://api.masivos", loc.Query().Get("audience"))
	assert.Equal(t, "http://localhost:3000/auth/callback", loc.Query().Get("redirect_uri"))

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func TestHandleCallbackCreatesSession(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=s1&code=good-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	rec := httptest.NewRecorder()
	m.HandleCallback(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "masivos_session" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)

	sess, err := store.Get(context.Background(), sessionCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "auth0|42", sess.UserID)
	assert.Equal(t, "ana@example.com", sess.Email)
	assert.Equal(t, "at-1", sess.Token.AccessToken)

	api := httptest.NewRequest(http.MethodGet, "/api/auth/token", nil)
	api.AddCookie(sessionCookie)
	tok, err := m.AccessToken(api)
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok)
}

func TestHandleCallbackRejectsBadState(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=other&code=good-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	rec := httptest.NewRecorder()
	m.HandleCallback(rec, req)

	assert.Equal(t, "/?error=invalid_state", rec.Header().Get("Location"))
	assert.Zero(t, store.Len())
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=s1&code=bad", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	rec := httptest.NewRecorder()
	m.HandleCallback(rec, req)

	assert.Equal(t, "/?error=exchange_failed", rec.Header().Get("Location"))
}

func TestAccessTokenRefreshesExpiredToken(t *testing.T) {
	store := NewMemoryStore()
	m, idp := newTestManager(t, store)

	sess := &Session{
		ID:        "sess-1",
		Email:     "ana@example.com",
		Token:     &oauth2.Token{AccessToken: "stale", RefreshToken: "rt-1", Expiry: time.Now().Add(-time.Minute)},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(context.Background(), sess))

	req := httptest.NewRequest(http.MethodGet, "/api/backend/campaigns", nil)
	req.AddCookie(&http.Cookie{Name: "masivos_session", Value: "sess-1"})

	tok, err := m.AccessToken(req)
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&idp.refreshes))

	saved, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", saved.Token.AccessToken)
}

func TestAccessTokenWithoutSession(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())

	_, err := m.AccessToken(httptest.NewRequest(http.MethodGet, "/api/auth/token", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestDisabledAuthUsesDevToken(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Enabled = false
	m := NewManager(cfg, "http://localhost:3000", NewMemoryStore())

	tok, err := m.AccessToken(httptest.NewRequest(http.MethodGet, "/api/auth/token", nil))
	require.NoError(t, err)
	assert.Equal(t, "dev-token", tok)

	tok, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-token", tok)
}

func TestRequireSession(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)
	require.NoError(t, store.Save(context.Background(), &Session{
		ID:        "sess-ok",
		Email:     "ana@example.com",
		Token:     &oauth2.Token{AccessToken: "at-1", Expiry: time.Now().Add(time.Hour)},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	var sawToken string
	h := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken, _ = m.Token(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		cookie string
		want   int
	}{
		{"api without session", "/api/backend/campaigns", "", http.StatusUnauthorized},
		{"api with unknown session", "/api/backend/campaigns", "nope", http.StatusUnauthorized},
		{"token endpoint passes through", "/api/auth/token", "", http.StatusOK},
		{"non api passes through", "/auth/login", "", http.StatusOK},
		{"api with session", "/api/backend/campaigns", "sess-ok", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "masivos_session", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "at-1", sawToken)
}

func TestHandleUserInfo(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)

	rec := httptest.NewRecorder()
	m.HandleUserInfo(rec, httptest.NewRequest(http.MethodGet, "/auth/user", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, store.Save(context.Background(), &Session{ID: "s", Email: "ana@example.com", Name: "Ana", ExpiresAt: time.Now().Add(time.Hour)}))
	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(&http.Cookie{Name: "masivos_session", Value: "s"})
	rec = httptest.NewRecorder()
	m.HandleUserInfo(rec, req)

	var body struct {
		Authenticated bool              `json:"authenticated"`
		User          map[string]string `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Authenticated)
	assert.Equal(t, "Ana", body.User["name"])
}

func TestHandleLogout(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)
	require.NoError(t, store.Save(context.Background(), &Session{ID: "s", ExpiresAt: time.Now().Add(time.Hour)}))

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "masivos_session", Value: "s"})
	rec := httptest.NewRecorder()
	m.HandleLogout(rec, req)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "tenant.example.com", loc.Host)
	assert.Equal(t, "/v2/logout", loc.Path)
	assert.Equal(t, "http://localhost:3000", loc.Query().Get("returnTo"))

	_, err = store.Get(context.Background(), "s")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestValidateCredentials(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	assert.NoError(t, m.ValidateCredentials(context.Background()))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Session{ID: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Save(ctx, &Session{ID: "new", ExpiresAt: now.Add(time.Hour)}))

	assert.Equal(t, 1, store.RemoveExpired())
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	sess := &Session{
		ID:        "r1",
		Email:     "ana@example.com",
		Token:     &oauth2.Token{AccessToken: "at-1", RefreshToken: "rt-1"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(ctx, sess))
	assert.True(t, mr.Exists("session:r1"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("session:r1").Seconds(), 5)

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "rt-1", got.Token.RefreshToken)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, "missing"))
}
