package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/masivos/admin-gateway/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewWithHTTPClient(config.ClientConfig{PageSize: 2, DefaultUserID: "1"}, StaticToken("test-token"), srv.Client())
	urls := BaseURLs{}
	for svc := range DefaultBaseURLs() {
		urls[svc] = srv.URL
	}
	c.SetBaseURLs(urls)
	return c, srv
}

func TestRequestUnsupportedMethodMakesNoCalls(t *testing.T) {
	var tokenCalls, httpCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&httpCalls, 1)
	}))
	defer srv.Close()

	tokens := TokenFunc(func(context.Context) (string, error) {
		atomic.AddInt32(&tokenCalls, 1)
		return "tok", nil
	})
	c := NewWithHTTPClient(config.ClientConfig{}, tokens, srv.Client())

	_, err := c.Request(context.Background(), "HEAD", srv.URL+"/contacts", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedMethod))
	assert.Zero(t, atomic.LoadInt32(&tokenCalls))
	assert.Zero(t, atomic.LoadInt32(&httpCalls))
}

func TestRequestHeadersCallerWins(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Request-Id"))
		w.Write([]byte(`{}`))
	})

	_, err := c.Request(context.Background(), http.MethodPost, c.URL(Contacts, "contacts"), &RequestOptions{
		Data:    strings.NewReader("email\nana@example.com\n"),
		Headers: map[string]string{"Content-Type": "text/csv", "X-Request-Id": "abc"},
	})
	require.NoError(t, err)
}

func TestRequestQueryOnlyForGetAndDelete(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.Method+" "+r.URL.RawQuery)
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"name":"x"}`, string(body))
		}
		w.Write([]byte(`{}`))
	})

	ctx := context.Background()
	params := Params{"userId": 3, "q": nil}
	for _, m := range []string{http.MethodGet, http.MethodDelete, http.MethodPost} {
		_, err := c.Request(ctx, m, c.URL(Campaigns, "campaigns"), &RequestOptions{Params: params, Data: map[string]string{"name": "x"}})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"GET userId=3", "DELETE userId=3", "POST "}, queries)
}

func TestRequestCallback(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"UP"}`))
	})

	out, err := c.Request(context.Background(), http.MethodGet, c.URL(Users, "users", "health"), &RequestOptions{
		Callback: func(b []byte) ([]byte, error) { return []byte(strings.ToUpper(string(b))), nil },
	})
	require.NoError(t, err)
	assert.Equal(t, `{"STATUS":"UP"}`, string(out))
}

func TestRequestAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`not here`))
	})

	_, err := c.GetContact(context.Background(), "99")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not here", string(apiErr.Body))
	assert.True(t, IsNotFound(err))
}

func TestRequestTokenError(t *testing.T) {
	var httpCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&httpCalls, 1)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(config.ClientConfig{}, TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("session expired")
	}), srv.Client())

	_, err := c.Request(context.Background(), http.MethodGet, srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Zero(t, atomic.LoadInt32(&httpCalls))
}

type listID int

func (l listID) String() string { return "list-" + string(rune('0'+int(l))) }

func TestBuildQuery(t *testing.T) {
	var nilPtr *int
	n := 5
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{"empty", nil, ""},
		{"nil dropped", Params{"a": nil, "b": "x"}, "b=x"},
		{"nil pointer dropped", Params{"p": nilPtr, "q": &n}, "q=5"},
		{"bools", Params{"active": true, "archived": false}, "active=true&archived=false"},
		{"numbers", Params{"page": 0, "size": int64(1000), "rate": 0.5}, "page=0&rate=0.5&size=1000"},
		{"time", Params{"from": ts}, "from=2024-03-01T12%3A00%3A00Z"},
		{"slice", Params{"ids": []int{1, 2, 3}}, "ids=1%2C2%2C3"},
		{"stringer", Params{"list": listID(4)}, "list=list-4"},
		{"escaping", Params{"search": "a b&c"}, "search=a+b%26c"},
		{"id", Params{"userId": ID("42")}, "userId=42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.params))
		})
	}
}

func TestBaseURLs(t *testing.T) {
	c := NewWithHTTPClient(config.ClientConfig{}, StaticToken("t"), nil)

	c.SetBaseURLs(BaseURLs{Contacts: "http://contacts:9000/"})
	urls := c.BaseURLs()
	assert.Equal(t, "http://contacts:9000", urls[Contacts])
	assert.Equal(t, "http://localhost:8083", urls[Campaigns])

	urls[Contacts] = "mutated"
	assert.Equal(t, "http://contacts:9000/contacts/list/7/contacts", c.URL(Contacts, "contacts", "list", "7", "contacts"))
}

func TestNewUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Services.Templates = "http://templates:7000"

	c := New(cfg, StaticToken("t"))
	assert.Equal(t, "http://templates:7000", c.BaseURLs()[Templates])
	assert.Equal(t, 1000, c.PageSize())
	assert.Equal(t, "1", c.DefaultUserID())
}

func TestDefaultUserIDCallerOverrides(t *testing.T) {
	var got []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("userId"))
		w.Write([]byte(`{"totalTemplates":3}`))
	})

	ctx := context.Background()
	_, err := c.GetTemplateStats(ctx, nil)
	require.NoError(t, err)
	stats, err := c.GetTemplateStats(ctx, Params{"userId": "9"})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "9"}, got)
	assert.Equal(t, int64(3), stats.TotalTemplates)
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": "x-1", "c": null}`), &v))
	assert.Equal(t, ID("12"), v.A)
	assert.Equal(t, ID("x-1"), v.B)
	assert.Equal(t, ID(""), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &v))
}

func TestEndpointToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("masivos_session")
		if err != nil || cookie.Value != "sess-1" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"Failed to get access token"}`))
			return
		}
		w.Write([]byte(`{"accessToken":"from-endpoint"}`))
	}))
	defer srv.Close()

	et := &EndpointToken{URL: srv.URL, HTTPClient: srv.Client(), Cookies: []*http.Cookie{{Name: "masivos_session", Value: "sess-1"}}}
	tok, err := et.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-endpoint", tok)

	et.Cookies = nil
	_, err = et.Token(context.Background())
	assert.Error(t, err)
}

func TestOAuth2Token(t *testing.T) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "oauth-tok"})
	tok, err := OAuth2Token{Source: src}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "oauth-tok", tok)

	_, err = OAuth2Token{}.Token(context.Background())
	assert.Error(t, err)

	_, err = StaticToken("").Token(context.Background())
	assert.Error(t, err)
}
