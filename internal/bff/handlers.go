package bff

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/bulk"
	"github.com/masivos/admin-gateway/internal/dashboard"
	"github.com/masivos/admin-gateway/internal/export"
	"github.com/masivos/admin-gateway/internal/pkg/httputil"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/preview"
)

// TokenSource hands out the access token of a request's session.
type TokenSource interface {
	AccessToken(r *http.Request) (string, error)
}

// Handlers serves the gateway's own API endpoints.
type Handlers struct {
	tokens    TokenSource
	dashboard *dashboard.Service
	bulk      *bulk.Service
	lister    export.Lister
	mailer    bulk.ListMailer
	exporter  *export.Exporter
	preview   *preview.Renderer
}

// HandleAccessToken returns the session's access token.
//
//	GET /api/auth/token
func (h *Handlers) HandleAccessToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.tokens.AccessToken(r)
	if err != nil || tok == "" {
		if err == nil {
			err = errors.New("empty access token")
		}
		httputil.SafeError(w, err, "Failed to get access token")
		return
	}
	httputil.OK(w, map[string]string{"accessToken": tok})
}

// HandleDashboardStats returns the merged statistics. It never fails:
// unavailable sources are replaced with fallback values.
//
//	GET /api/dashboard/stats
func (h *Handlers) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.dashboard.Stats(r.Context()))
}

// HandleDashboardOverview returns contacts, lists, templates and campaigns
// in one response, or an error if any of them fails.
//
//	GET /api/dashboard/overview
func (h *Handlers) HandleDashboardOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.dashboard.Overview(r.Context())
	if err != nil {
		httputil.SafeError(w, err, "Failed to load dashboard")
		return
	}
	httputil.OK(w, ov)
}

type addToListRequest struct {
	ContactIDs []apiclient.ID `json:"contactIds"`
}

// HandleAddContactsToList adds contacts to a list one by one. When a call
// fails the response still reports the contacts already added.
//
//	POST /api/lists/{id}/contacts
func (h *Handlers) HandleAddContactsToList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	var req addToListRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ids := make([]string, 0, len(req.ContactIDs))
	for _, id := range req.ContactIDs {
		if id != "" {
			ids = append(ids, id.String())
		}
	}

	res, err := h.bulk.AddContactsToList(r.Context(), listID, ids)
	switch {
	case err == nil:
		httputil.OK(w, res)
	case errors.Is(err, bulk.ErrNoContacts):
		httputil.BadRequest(w, "contactIds is required")
	case errors.Is(err, bulk.ErrListBusy):
		httputil.Error(w, http.StatusConflict, "Another operation is updating this list")
	case res != nil:
		logger.Error("bff: bulk add stopped", "list_id", listID, "request_id", requestID(r), "error", err)
		httputil.JSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error:   "Failed to add contacts to list",
			Details: res,
		})
	default:
		httputil.SafeError(w, err, "Failed to add contacts to list")
	}
}

// HandleDeleteContacts deletes contacts in parallel. When a delete fails
// the response reports the contacts already deleted.
//
//	DELETE /api/contacts
func (h *Handlers) HandleDeleteContacts(w http.ResponseWriter, r *http.Request) {
	var req addToListRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ids := make([]string, 0, len(req.ContactIDs))
	for _, id := range req.ContactIDs {
		if id != "" {
			ids = append(ids, id.String())
		}
	}

	res, err := h.bulk.DeleteContacts(r.Context(), ids)
	switch {
	case err == nil:
		httputil.OK(w, res)
	case errors.Is(err, bulk.ErrNoContacts):
		httputil.BadRequest(w, "contactIds is required")
	case res != nil:
		logger.Error("bff: bulk delete stopped", "request_id", requestID(r), "error", err)
		httputil.JSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error:   "Failed to delete contacts",
			Details: res,
		})
	default:
		httputil.SafeError(w, err, "Failed to delete contacts")
	}
}

// HandleSendToLists sends one email to every contact of the given lists.
// Lists that cannot be read are skipped and named in the response.
//
//	POST /api/emails/send/lists
func (h *Handlers) HandleSendToLists(w http.ResponseWriter, r *http.Request) {
	var req bulk.ListSendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.HTMLContent == "" {
		httputil.BadRequest(w, "subject and htmlContent are required")
		return
	}

	res, err := bulk.SendToLists(r.Context(), h.mailer, req)
	switch {
	case err == nil:
		httputil.OK(w, res)
	case errors.Is(err, bulk.ErrNoLists):
		httputil.BadRequest(w, "listIds is required")
	case errors.Is(err, bulk.ErrNoRecipients):
		httputil.JSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{
			Error:   "The selected lists have no contacts",
			Details: res,
		})
	default:
		httputil.SafeError(w, err, "Failed to send bulk email")
	}
}

// HandleGetBulkRun returns a journaled bulk run.
//
//	GET /api/bulk/runs/{id}
func (h *Handlers) HandleGetBulkRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.bulk.Journal().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, bulk.ErrRunNotFound) {
		httputil.NotFound(w, "bulk run not found")
		return
	}
	if err != nil {
		httputil.SafeError(w, err, "Failed to fetch bulk run")
		return
	}
	httputil.OK(w, run)
}

// HandleDownloadList drains every page of a list and answers a CSV file.
//
//	GET /api/lists/{id}/export
func (h *Handlers) HandleDownloadList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	contacts, err := h.lister.ContactsByList(r.Context(), listID, nil)
	if err != nil {
		httputil.SafeError(w, err, "Failed to export list")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(listID, now())))
	if err := export.WriteCSV(w, contacts); err != nil {
		logger.Error("bff: writing csv", "list_id", listID, "error", err)
	}
}

// HandleExportList stores the list export in the configured sink.
//
//	POST /api/lists/{id}/export
func (h *Handlers) HandleExportList(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "List export is not configured")
		return
	}
	res, err := h.exporter.Export(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.SafeError(w, err, "Failed to export list")
		return
	}
	httputil.OK(w, res)
}

type previewRequest struct {
	preview.Input
	Data map[string]any `json:"data,omitempty"`
}

// HandlePreview renders a template locally with sample data.
//
//	POST /api/templates/preview
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.preview.Preview(req.Input, req.Data)
	if err != nil {
		httputil.BadRequest(w, "Invalid template: "+err.Error())
		return
	}
	httputil.OK(w, res)
}

var now = time.Now

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
