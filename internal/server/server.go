// Package server exposes schemas, field specs, validation and row access
// over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/tabula/internal/entity"
	"github.com/koustreak/tabula/internal/fieldspec"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/metadata"
)

// HealthCheck reports whether the backend is reachable.
type HealthCheck func(ctx context.Context) error

// Server is the tabula HTTP server.
type Server struct {
	registry *metadata.Registry
	fields   *fieldspec.Builder
	entities *entity.Service
	health   HealthCheck
	timeout  time.Duration
	log      *logger.Logger

	router *chi.Mux
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.Component("server") }
}

// WithHealthCheck sets the check behind /healthz.
func WithHealthCheck(fn HealthCheck) Option {
	return func(s *Server) { s.health = fn }
}

// WithRequestTimeout bounds every request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New builds a Server and its routes.
func New(registry *metadata.Registry, fields *fieldspec.Builder, entities *entity.Service, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		fields:   fields,
		entities: entities,
		log:      logger.Nop(),
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	if s.timeout > 0 {
		s.router.Use(middleware.Timeout(s.timeout))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleListTables)

		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/schema", s.handleSchema)
			r.Get("/fields", s.handleFields)
			r.Get("/options", s.handleOptions)
			r.Post("/validate", s.handleValidate)

			r.Get("/rows", s.handleListRows)
			r.Post("/rows", s.handleCreateRow)
			r.Get("/rows/{id}", s.handleGetRow)
			r.Put("/rows/{id}", s.handleUpdateRow)
			r.Patch("/rows/{id}", s.handleUpdateRow)
			r.Delete("/rows/{id}", s.handleDeleteRow)
		})

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleClearCache)
		r.Delete("/cache/schema/{table}", s.handleClearSchema)
	})
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log.InfoWith("starting server", map[string]any{"addr": addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
