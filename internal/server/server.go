// Package server assembles the read-only HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/soundlattice/artistcrawl/internal/server/handlers"
	"github.com/soundlattice/artistcrawl/internal/server/middleware"
	"github.com/soundlattice/artistcrawl/pkg/spotify"
)

// Deps are the collaborators the API exposes.
type Deps struct {
	Search   spotify.Endpoint
	Active   handlers.ActiveLister
	Window   handlers.WindowReader
	Progress handlers.ProgressReader
	Health   *handlers.HealthManager

	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Logger *zap.Logger
}

// Server is the HTTP API host.
type Server struct {
	host   string
	port   int
	router chi.Router
	log    *zap.Logger

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// Option customizes a Server.
type Option func(*Server)

// WithTimeouts overrides the HTTP server timeouts.
func WithTimeouts(read, write, idle, shutdown time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
		s.shutdownTimeout = shutdown
	}
}

// New builds the server and its routes.
func New(host string, port int, deps Deps, opts ...Option) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		host:            host,
		port:            port,
		log:             log,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		idleTimeout:     120 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RecoveryWithLogger(log))
	r.Use(middleware.CORS)
	r.Use(chimw.RealIP)

	if deps.Search != nil {
		search := handlers.NewSearchHandler(deps.Search, log)
		r.With(middleware.Throttle(rate.Limit(5), 10)).
			Method(http.MethodGet, "/search", search)
	}
	if deps.Active != nil && deps.Window != nil && deps.Progress != nil {
		status := handlers.NewStatusHandler(deps.Active, deps.Window, deps.Progress, log)
		r.Method(http.MethodGet, "/status", status)
	}
	if deps.Health != nil {
		r.Get("/healthz", deps.Health.HealthHandler)
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	s.router = r
	return s
}

// Handler returns the assembled routes.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return ctx.Err()
	}
}
