package bff

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/auth"
	"github.com/masivos/admin-gateway/internal/bulk"
	"github.com/masivos/admin-gateway/internal/dashboard"
	"github.com/masivos/admin-gateway/internal/export"
	"github.com/masivos/admin-gateway/internal/preview"
)

// Deps are the components the router serves. Exporter may be nil.
type Deps struct {
	AllowedOrigins []string
	BackendURL     string

	Auth      *auth.Manager
	Client    *apiclient.Client
	Dashboard *dashboard.Service
	Bulk      *bulk.Service
	Exporter  *export.Exporter
	Preview   *preview.Renderer
	Health    *HealthChecker
}

// NewRouter builds the gateway router.
func NewRouter(d Deps) *chi.Mux {
	return setupRoutes(d.Auth, d.Health, NewProxy(d.Client, d.BackendURL), &Handlers{
		tokens:    d.Auth,
		dashboard: d.Dashboard,
		bulk:      d.Bulk,
		lister:    d.Client,
		mailer:    d.Client,
		exporter:  d.Exporter,
		preview:   d.Preview,
	}, d.AllowedOrigins)
}

func setupRoutes(authManager *auth.Manager, health *HealthChecker, proxy *Proxy, h *Handlers, origins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "masivos-admin-gateway")
			next.ServeHTTP(w, req)
		})
	})

	// Credentials are allowed for the session cookie, so origins are explicit.
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/auth/login", authManager.HandleLogin)
	r.Get("/auth/callback", authManager.HandleCallback)
	r.Get("/auth/logout", authManager.HandleLogout)
	r.Get("/auth/user", authManager.HandleUserInfo)

	r.Route("/api", func(r chi.Router) {
		r.Use(authManager.RequireSession)

		r.Get("/auth/token", h.HandleAccessToken)

		r.Route("/backend", proxy.Mount)

		r.Get("/dashboard/stats", h.HandleDashboardStats)
		r.Get("/dashboard/overview", h.HandleDashboardOverview)

		r.Post("/lists/{id}/contacts", h.HandleAddContactsToList)
		r.Get("/lists/{id}/export", h.HandleDownloadList)
		r.Post("/lists/{id}/export", h.HandleExportList)
		r.Delete("/contacts", h.HandleDeleteContacts)
		r.Post("/emails/send/lists", h.HandleSendToLists)
		r.Get("/bulk/runs/{id}", h.HandleGetBulkRun)

		r.Post("/templates/preview", h.HandlePreview)
	})

	return r
}
