// Package apiclient is the HTTP client for the platform micro-services.
//
// A single Client holds the base URL of every service, attaches a bearer
// token from a TokenProvider to each call and exposes one typed method per
// backend endpoint on top of the generic Request facade.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/masivos/admin-gateway/internal/config"
	"github.com/masivos/admin-gateway/internal/pkg/httpretry"
)

// Service names a backend micro-service.
type Service string

const (
	Users     Service = "users"
	Contacts  Service = "contacts"
	Campaigns Service = "campaigns"
	Emails    Service = "emails"
	Templates Service = "templates"
	Gateway   Service = "gateway"
)

// BaseURLs maps each service to its base URL.
type BaseURLs map[Service]string

// DefaultBaseURLs returns the local development service locations.
func DefaultBaseURLs() BaseURLs {
	return BaseURLs{
		Users:     "http://localhost:8081",
		Contacts:  "http://localhost:8082",
		Campaigns: "http://localhost:8083",
		Emails:    "http://localhost:8084",
		Templates: "http://localhost:8085",
		Gateway:   "http://localhost:8080",
	}
}

// BaseURLsFromConfig builds the service map from configuration.
func BaseURLsFromConfig(cfg config.ServicesConfig) BaseURLs {
	urls := DefaultBaseURLs()
	for svc, u := range map[Service]string{
		Users:     cfg.Users,
		Contacts:  cfg.Contacts,
		Campaigns: cfg.Campaigns,
		Emails:    cfg.Emails,
		Templates: cfg.Templates,
		Gateway:   cfg.Gateway,
	} {
		if u != "" {
			urls[svc] = u
		}
	}
	return urls
}

// ErrUnsupportedMethod is returned by Request for verbs other than
// GET, POST, PUT, PATCH and DELETE.
var ErrUnsupportedMethod = errors.New("apiclient: unsupported HTTP method")

// ErrNoToken wraps failures of the TokenProvider.
var ErrNoToken = errors.New("apiclient: no access token")

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d) %s %s: %s", e.StatusCode, e.Method, e.URL, truncate(string(e.Body), 200))
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Params are query parameters. Nil values are dropped.
type Params map[string]any

// RequestOptions carries the optional parts of a request.
type RequestOptions struct {
	// Data is the body of POST, PUT and PATCH requests. An io.Reader is
	// sent as-is, anything else is JSON encoded.
	Data    any
	Params  Params
	Headers map[string]string
	// Callback transforms the response body. Defaults to identity.
	Callback func([]byte) ([]byte, error)
}

// Client is the service API client.
type Client struct {
	mu            sync.RWMutex
	baseURLs      BaseURLs
	tokens        TokenProvider
	httpClient    httpretry.HTTPDoer
	pageSize      int
	defaultUserID string
}

// New creates a Client using the service URLs and client settings from cfg.
func New(cfg *config.Config, tokens TokenProvider) *Client {
	c := NewWithHTTPClient(cfg.Client, tokens, &http.Client{Timeout: cfg.Client.Timeout()})
	c.SetBaseURLs(BaseURLsFromConfig(cfg.Services))
	return c
}

// NewWithHTTPClient creates a Client with default base URLs around an
// existing HTTP client. Retries are added when cfg.MaxRetries is positive.
func NewWithHTTPClient(cfg config.ClientConfig, tokens TokenProvider, hc httpretry.HTTPDoer) *Client {
	if hc == nil {
		timeout := cfg.Timeout()
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	userID := cfg.DefaultUserID
	if userID == "" {
		userID = "1"
	}
	return &Client{
		baseURLs:      DefaultBaseURLs(),
		tokens:        tokens,
		httpClient:    httpretry.Wrap(hc, cfg.MaxRetries),
		pageSize:      pageSize,
		defaultUserID: userID,
	}
}

// SetBaseURLs merges urls into the current service map.
func (c *Client) SetBaseURLs(urls BaseURLs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for svc, u := range urls {
		c.baseURLs[svc] = strings.TrimRight(u, "/")
	}
}

// BaseURLs returns a copy of the service map.
func (c *Client) BaseURLs() BaseURLs {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(BaseURLs, len(c.baseURLs))
	for k, v := range c.baseURLs {
		out[k] = v
	}
	return out
}

// URL joins the base URL of svc with the given path segments.
func (c *Client) URL(svc Service, segments ...string) string {
	c.mu.RLock()
	base := c.baseURLs[svc]
	c.mu.RUnlock()

	var b strings.Builder
	b.WriteString(base)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(strings.Trim(s, "/")))
	}
	return b.String()
}

// PageSize returns the page size used by the pagination drainer.
func (c *Client) PageSize() int { return c.pageSize }

// DefaultUserID returns the user id sent when callers do not provide one.
func (c *Client) DefaultUserID() string { return c.defaultUserID }

// Request performs an authenticated call and returns the response body.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts *RequestOptions) ([]byte, error) {
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if opts == nil {
		opts = &RequestOptions{}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoToken, err)
	}

	fullURL := rawURL
	if method == http.MethodGet || method == http.MethodDelete {
		if qs := BuildQuery(opts.Params); qs != "" {
			sep := "?"
			if strings.Contains(fullURL, "?") {
				sep = "&"
			}
			fullURL += sep + qs
		}
	}

	var body io.Reader
	if opts.Data != nil && method != http.MethodGet && method != http.MethodDelete {
		switch d := opts.Data.(type) {
		case io.Reader:
			body = d
		case []byte:
			body = bytes.NewReader(d)
		default:
			jsonBody, err := json.Marshal(d)
			if err != nil {
				return nil, fmt.Errorf("marshaling request body: %w", err)
			}
			body = bytes.NewReader(jsonBody)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: method, URL: rawURL, StatusCode: resp.StatusCode, Body: respBody}
	}

	if opts.Callback != nil {
		return opts.Callback(respBody)
	}
	return respBody, nil
}

// do runs Request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, rawURL string, opts *RequestOptions, out any) error {
	body, err := c.Request(ctx, method, rawURL, opts)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response from %s: %w", rawURL, err)
	}
	return nil
}

// withUser returns params with userId defaulted. Caller values win.
func (c *Client) withUser(params Params) Params {
	out := Params{"userId": c.defaultUserID}
	for k, v := range params {
		out[k] = v
	}
	return out
}

// BuildQuery encodes params as a URL query string sorted by key.
// Nil values and nil pointers are skipped.
func BuildQuery(params Params) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := stringify(params[k]); ok {
			values.Set(k, s)
		}
	}
	return values.Encode()
}

func stringify(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case ID:
		return string(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Time:
		return x.Format(time.RFC3339), true
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", false
		}
		return x.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", false
		}
		return stringify(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "", false
		}
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if s, ok := stringify(rv.Index(i).Interface()); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.String:
		return rv.String(), true
	}
	return fmt.Sprintf("%v", v), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
