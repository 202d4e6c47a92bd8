// Package auth runs the OpenID Connect authorization code flow against the
// identity provider and keeps the resulting tokens in server-side sessions.
// Browsers only hold an opaque session cookie; API handlers obtain the
// bearer token for backend calls through Manager.Token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/masivos/admin-gateway/internal/config"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
)

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errors.New("auth: no active session")

const stateCookie = "oauth_state"

// UserInfo is the OIDC userinfo payload.
type UserInfo struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Picture  string `json:"picture"`
}

// Manager handles login, logout and session lookup.
type Manager struct {
	cfg         config.AuthConfig
	oauth2      *oauth2.Config
	userInfoURL string
	logoutURL   string
	publicURL   string
	store       SessionStore
	httpClient  *http.Client
	now         func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithEndpoints overrides the identity provider endpoints derived from the
// configured domain.
func WithEndpoints(authURL, tokenURL, userInfoURL string) Option {
	return func(m *Manager) {
		m.oauth2.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		m.userInfoURL = userInfoURL
	}
}

// WithHTTPClient sets the client used to talk to the identity provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.httpClient = hc }
}

// NewManager creates a Manager. publicURL is the externally visible base
// URL of the gateway and is used to build the callback URL.
func NewManager(cfg config.AuthConfig, publicURL string, store SessionStore, opts ...Option) *Manager {
	publicURL = strings.TrimRight(publicURL, "/")
	m := &Manager{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  publicURL + "/auth/callback",
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL(),
				TokenURL: cfg.TokenURL(),
			},
		},
		userInfoURL: cfg.UserInfoURL(),
		logoutURL:   "https://" + cfg.Domain + "/v2/logout",
		publicURL:   publicURL,
		store:       store,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether requests must carry a session.
func (m *Manager) Enabled() bool { return m.cfg.Enabled }

func (m *Manager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// generateState creates a random state string for OAuth
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HandleLogin redirects to the identity provider.
func (m *Manager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	opts := []oauth2.AuthCodeOption{}
	if m.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", m.cfg.Audience))
	}
	http.Redirect(w, r, m.oauth2.AuthCodeURL(state, opts...), http.StatusTemporaryRedirect)
}

// HandleCallback exchanges the authorization code and creates the session.
func (m *Manager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	sc, err := r.Cookie(stateCookie)
	if err != nil || r.URL.Query().Get("state") != sc.Value {
		logger.Warn("auth: invalid oauth state")
		http.Redirect(w, r, "/?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		logger.Warn("auth: identity provider returned error", "error", errMsg, "description", r.URL.Query().Get("error_description"))
		http.Redirect(w, r, "/?error="+url.QueryEscape(errMsg), http.StatusTemporaryRedirect)
		return
	}

	ctx := m.oauthContext(r.Context())
	token, err := m.oauth2.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		logger.Error("auth: code exchange failed", "error", err)
		http.Redirect(w, r, "/?error=exchange_failed", http.StatusTemporaryRedirect)
		return
	}

	info, err := m.fetchUserInfo(r.Context(), token.AccessToken)
	if err != nil {
		logger.Error("auth: userinfo failed", "error", err)
		http.Redirect(w, r, "/?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}

	now := m.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		Picture:   info.Picture,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTTL()),
	}
	if sess.Name == "" {
		sess.Name = info.Nickname
	}
	if err := m.store.Save(r.Context(), sess); err != nil {
		logger.Error("auth: saving session failed", "error", err)
		http.Redirect(w, r, "/?error=session_failed", http.StatusTemporaryRedirect)
		return
	}

	logger.Info("auth: user logged in", "email", info.Email)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   m.cfg.CookieMaxAge,
		HttpOnly: true,
		Secure:   strings.HasPrefix(m.publicURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleLogout ends the local session and the identity provider session.
func (m *Manager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		if err := m.store.Delete(r.Context(), c.Value); err != nil {
			logger.Warn("auth: deleting session failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{Name: m.cfg.CookieName, Value: "", Path: "/", MaxAge: -1})

	target := "/"
	if m.cfg.Enabled && m.cfg.Domain != "" {
		q := url.Values{"client_id": {m.cfg.ClientID}, "returnTo": {m.publicURL}}
		target = m.logoutURL + "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// HandleUserInfo returns the current user's info as JSON
func (m *Manager) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !m.cfg.Enabled {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": true,
			"user":          map[string]string{"id": "dev", "name": "Developer"},
		})
		return
	}

	sess, err := m.Session(r)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"authenticated": false})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"authenticated": true,
		"user": map[string]string{
			"id":      sess.UserID,
			"email":   sess.Email,
			"name":    sess.Name,
			"picture": sess.Picture,
		},
	})
}

// Session returns the session of the request from the context or cookie.
func (m *Manager) Session(r *http.Request) (*Session, error) {
	if s := SessionFromContext(r.Context()); s != nil {
		return s, nil
	}
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	s, err := m.store.Get(r.Context(), c.Value)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		return nil, ErrNoSession
	}
	return s, nil
}

// AccessToken returns a valid access token for the request's session.
func (m *Manager) AccessToken(r *http.Request) (string, error) {
	if !m.cfg.Enabled {
		return m.cfg.DevToken, nil
	}
	s, err := m.Session(r)
	if err != nil {
		return "", err
	}
	return m.refresh(r.Context(), s)
}

// Token returns the access token of the session stored in ctx by
// RequireSession. It lets the service API client act as the signed in user.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if !m.cfg.Enabled {
		return m.cfg.DevToken, nil
	}
	s := SessionFromContext(ctx)
	if s == nil {
		return "", ErrNoSession
	}
	return m.refresh(ctx, s)
}

// refresh returns the session's access token, using the refresh token when
// it has expired and persisting the new token.
func (m *Manager) refresh(ctx context.Context, s *Session) (string, error) {
	if s.Token == nil {
		return "", ErrNoSession
	}
	tok, err := m.oauth2.TokenSource(m.oauthContext(ctx), s.Token).Token()
	if err != nil {
		return "", fmt.Errorf("auth: refreshing token: %w", err)
	}
	if tok.AccessToken != s.Token.AccessToken {
		s.Token = tok
		if err := m.store.Save(ctx, s); err != nil {
			logger.Warn("auth: saving refreshed token failed", "error", err)
		}
		logger.Debug("auth: access token refreshed", "email", s.Email)
	}
	return tok.AccessToken, nil
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by RequireSession, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// RequireSession is middleware that loads the session into the request
// context and rejects unauthenticated API calls with 401. The token
// endpoint answers its own error envelope and is let through.
func (m *Manager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		s, err := m.Session(r)
		if err == nil {
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
			return
		}
		if !errors.Is(err, ErrNoSession) {
			logger.Error("auth: session lookup failed", "error", err)
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && r.URL.Path != "/api/auth/token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Manager) fetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing userinfo: %w", err)
	}
	return &info, nil
}

// ValidateCredentials probes the token endpoint with a dummy code so a
// rotated client secret shows up at boot instead of at the first login.
// An invalid_grant answer means the client itself was accepted.
func (m *Manager) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"validation_probe"},
		"client_id":     {m.oauth2.ClientID},
		"client_secret": {m.oauth2.ClientSecret},
		"redirect_uri":  {m.oauth2.RedirectURL},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.oauth2.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var oerr struct {
		Error string `json:"error"`
	}
	json.Unmarshal(body, &oerr)

	switch {
	case oerr.Error == "invalid_grant":
		return nil
	case oerr.Error == "invalid_client" || oerr.Error == "access_denied" || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("identity provider rejected client %s (%s)", m.oauth2.ClientID, oerr.Error)
	default:
		return fmt.Errorf("unexpected response from token endpoint (HTTP %d): %s", resp.StatusCode, string(body))
	}
}
