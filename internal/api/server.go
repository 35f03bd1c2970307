package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sassongal/revWave-sub000/internal/config"
)

// Server wraps the HTTP server and router.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router for h.
func NewServer(cfg config.ServerConfig, h *Handlers, limiter *RateLimiter) *Server {
	return &Server{
		config: cfg,
		handler: SetupRoutes(h, RouteOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			Unsubscribe:    limiter,
		}),
	}
}

// ListenAndServe starts the HTTP server. Sync requests run inline, so the
// write timeout is sized for a full tenant sync.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      3 * time.Minute,
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
