// Package api serves the evaluator and the post-processors over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eraeval/internal"
	"eraeval/internal/config"
	"eraeval/ports"
)

const (
	maxBodyBytes    = 256 << 20
	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP front end of the evaluation engine
type Server struct {
	router  *chi.Mux
	config  *config.Config
	reports ports.ReportRepository
	logger  *internal.Logger
}

// NewServer creates a server. reports may be nil, in which case the report
// routes are not mounted and evaluations cannot be saved.
func NewServer(cfg *config.Config, reports ports.ReportRepository, logger *internal.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		reports: reports,
		logger:  logger.Named("API"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures HTTP middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/neutralize", s.handleNeutralize)
		r.Post("/penalize", s.handlePenalize)

		if s.reports != nil {
			r.Get("/reports", s.handleListReports)
			r.Get("/reports/{id}", s.handleGetReport)
		}
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
