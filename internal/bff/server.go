// Package bff is the HTTP back end for the admin UI. It proxies the UI's
// API calls to the backend gateway with the signed in user's token and
// serves the endpoints the gateway computes itself: dashboard statistics,
// bulk list updates, list exports and template previews.
package bff

import (
	"context"
	"net/http"
	"time"
)

// Server is the gateway HTTP server.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates a Server for the router built from d.
func NewServer(d Deps) *Server {
	return &Server{handler: NewRouter(d)}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// List exports drain whole lists before the first byte is written.
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
