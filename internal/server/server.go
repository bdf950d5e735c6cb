package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/routecodex/routecodex/internal/metrics"
	"github.com/routecodex/routecodex/internal/tracing"
)

// Server is RouteCodex's HTTP entrypoint. It binds the chi router to the
// configured address and provides graceful shutdown support.
type Server struct {
	router  chi.Router
	httpSrv *http.Server
}

// NewServer builds a Server serving handler's routes on addr. Zero-value
// timeouts leave the corresponding http.Server field at its default (no
// timeout). If tracingEnabled is true, the OpenTelemetry HTTP middleware
// extracts/injects trace context on every request. adminToken, when
// non-empty, gates /admin/config behind a constant-time bearer check.
func NewServer(h *Handler, addr string, readTimeout, writeTimeout, idleTimeout time.Duration, tracingEnabled bool, adminToken string) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if tracingEnabled {
		r.Use(tracing.HTTPMiddleware)
	}

	r.Post("/v1/chat/completions", h.HandleChatCompletions)
	r.Post("/v1/completions", h.HandleChatCompletions)
	r.Post("/v1/responses", h.HandleResponses)
	r.Post("/v1/messages", h.HandleMessages)
	r.Get("/v1/models", h.HandleModels)
	r.Get("/health", h.HandleHealth)
	if h.Metrics != nil {
		r.Get("/metrics", metrics.PrometheusHandler(h.Metrics))
	}

	r.Group(func(admin chi.Router) {
		if adminToken != "" {
			admin.Use(AdminAuthMiddleware(adminToken))
		}
		admin.Get("/admin/config", h.HandleAdminConfig)
	})

	return &Server{
		router: r,
		httpSrv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}
}

// Router returns the underlying chi.Router, useful for testing or
// additional route mounting by the caller.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP connections on the configured address.
// It blocks until the server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// StartTLS begins listening for HTTPS connections using the given
// certificate and key files.
func (s *Server) StartTLS(certFile, keyFile string) error {
	if err := s.httpSrv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server (tls): %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
