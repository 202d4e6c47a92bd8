package bff

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/pkg/httputil"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/pkg/metrics"
)

// Requester performs authenticated backend calls. *apiclient.Client
// satisfies it.
type Requester interface {
	Request(ctx context.Context, method, rawURL string, opts *apiclient.RequestOptions) ([]byte, error)
}

// Route is one proxied endpoint. Path is mounted under /api/backend and
// Backend is the path under /api on the gateway; "{id}" in Backend is
// replaced with the id URL parameter.
type Route struct {
	Method  string
	Path    string
	Backend string
	ErrMsg  string
}

// Routes is the proxy route table.
var Routes = []Route{
	{http.MethodGet, "/campaigns", "campaigns", "Failed to fetch campaigns"},
	{http.MethodPost, "/campaigns", "campaigns", "Failed to create campaign"},
	{http.MethodGet, "/campaigns/stats", "campaigns/stats", "Failed to fetch campaign statistics"},
	{http.MethodGet, "/campaigns/{id}", "campaigns/{id}", "Failed to fetch campaign"},
	{http.MethodPut, "/campaigns/{id}", "campaigns/{id}", "Failed to update campaign"},
	{http.MethodDelete, "/campaigns/{id}", "campaigns/{id}", "Failed to delete campaign"},
	{http.MethodPost, "/campaigns/{id}/cancel", "campaigns/{id}/cancel", "Failed to cancel campaign"},

	{http.MethodGet, "/templates", "templates", "Failed to fetch templates"},
	{http.MethodPost, "/templates", "templates", "Failed to create template"},
	{http.MethodGet, "/templates/stats", "templates/stats", "Failed to fetch template statistics"},
	{http.MethodGet, "/templates/{id}", "templates/{id}", "Failed to fetch template"},
	{http.MethodPut, "/templates/{id}", "templates/{id}", "Failed to update template"},
	{http.MethodDelete, "/templates/{id}", "templates/{id}", "Failed to delete template"},
	{http.MethodPost, "/templates/{id}/duplicate", "templates/{id}/duplicate", "Failed to duplicate template"},
	{http.MethodPost, "/templates/{id}/activate", "templates/{id}/activate", "Failed to activate template"},

	{http.MethodGet, "/contacts", "contacts", "Failed to fetch contacts"},
	{http.MethodPost, "/contacts", "contacts", "Failed to create contact"},
	{http.MethodGet, "/contacts/stats", "contacts/stats", "Failed to fetch contact statistics"},
	{http.MethodGet, "/contacts/lists", "contacts/lists", "Failed to fetch contact lists"},
	{http.MethodPost, "/contacts/lists", "contacts/lists", "Failed to create contact list"},
	{http.MethodPut, "/contacts/lists/{id}", "contacts/list/{id}", "Failed to update contact list"},
	{http.MethodDelete, "/contacts/lists/{id}", "contacts/list/{id}", "Failed to delete contact list"},
	{http.MethodGet, "/contacts/{id}", "contacts/{id}", "Failed to fetch contact"},
	{http.MethodPut, "/contacts/{id}", "contacts/{id}", "Failed to update contact"},
	{http.MethodDelete, "/contacts/{id}", "contacts/{id}", "Failed to delete contact"},

	{http.MethodGet, "/emails", "emails", "Failed to fetch emails"},
	{http.MethodPost, "/emails/send", "emails/send", "Failed to send email"},
	{http.MethodGet, "/emails/stats", "emails/stats", "Failed to fetch email statistics"},
	{http.MethodGet, "/emails/{id}", "emails/{id}", "Failed to fetch email"},
}

// Proxy forwards API calls to the backend gateway.
type Proxy struct {
	client  Requester
	backend string
}

// NewProxy creates a Proxy forwarding to backendURL.
func NewProxy(client Requester, backendURL string) *Proxy {
	return &Proxy{client: client, backend: strings.TrimRight(backendURL, "/")}
}

// Mount registers every route of the table on r.
func (p *Proxy) Mount(r chi.Router) {
	for _, rt := range Routes {
		r.Method(rt.Method, rt.Path, p.handler(rt))
	}
}

func (p *Proxy) target(rt Route, r *http.Request) string {
	path := strings.ReplaceAll(rt.Backend, "{id}", url.PathEscape(chi.URLParam(r, "id")))
	u := p.backend + "/api/" + path
	if rt.Method == http.MethodGet && r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

func (p *Proxy) handler(rt Route) http.HandlerFunc {
	label := "/api/backend" + rt.Path
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK
		defer func() {
			metrics.ProxyRequests.WithLabelValues(label, rt.Method, strconv.Itoa(status)).Inc()
			metrics.ProxyDuration.WithLabelValues(label, rt.Method).Observe(time.Since(start).Seconds())
		}()

		fail := func(cause string, err error) {
			status = http.StatusInternalServerError
			metrics.UpstreamFailures.WithLabelValues(label, cause).Inc()
			logger.Error("bff: proxy failed",
				"route", label, "method", rt.Method, "cause", cause,
				"request_id", requestID(r), "error", err)
			httputil.Error(w, status, rt.ErrMsg)
		}

		opts := &apiclient.RequestOptions{}
		if rt.Method != http.MethodGet && rt.Method != http.MethodDelete {
			body, err := httputil.ReadJSONBody(r)
			if err != nil {
				fail("request", err)
				return
			}
			if body != nil {
				opts.Data = body
			}
		}

		resp, err := p.client.Request(r.Context(), rt.Method, p.target(rt, r), opts)
		if err != nil {
			fail(failureCause(err), err)
			return
		}

		if rt.Method == http.MethodDelete {
			httputil.OK(w, map[string]bool{"success": true})
			return
		}
		if !json.Valid(resp) {
			fail("decode", errors.New("backend response is not JSON"))
			return
		}
		httputil.RawJSON(w, http.StatusOK, resp)
	}
}

func failureCause(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrNoToken):
		return "token"
	case errors.As(err, &apiErr):
		return "status"
	default:
		return "transport"
	}
}
