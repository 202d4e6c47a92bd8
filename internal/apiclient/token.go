package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenProvider supplies the bearer token attached to every request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always returns the same token.
type StaticToken string

// Token returns the static token.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("apiclient: empty static token")
	}
	return string(s), nil
}

// EndpointToken fetches the token from an endpoint answering
// {"accessToken": "..."}, such as the BFF's /api/auth/token.
// The endpoint is expected to refresh expired tokens itself.
type EndpointToken struct {
	URL        string
	HTTPClient *http.Client
	// Cookies are forwarded so the endpoint can find the session.
	Cookies []*http.Cookie
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Token requests a fresh access token from the endpoint.
func (e *EndpointToken) Token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	for _, c := range e.Cookies {
		req.AddCookie(c)
	}

	hc := e.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Method: http.MethodGet, URL: e.URL, StatusCode: resp.StatusCode, Body: body}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token endpoint returned no accessToken")
	}
	return tr.AccessToken, nil
}

// OAuth2Token adapts an oauth2.TokenSource. Wrap the source with
// oauth2.ReuseTokenSource to refresh only when the token expires.
type OAuth2Token struct {
	Source oauth2.TokenSource
}

// Token returns the current access token of the source.
func (o OAuth2Token) Token(context.Context) (string, error) {
	if o.Source == nil {
		return "", errors.New("apiclient: no token source configured")
	}
	tok, err := o.Source.Token()
	if err != nil {
		return "", fmt.Errorf("oauth2 token: %w", err)
	}
	return tok.AccessToken, nil
}
