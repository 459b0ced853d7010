// Package web serves the listing page, a small JSON API over the current
// snapshot and the refresh trigger.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"flat-aggregator/services"
	"flat-aggregator/utils"
)

// Refresher runs the scrape, merge and reload pipeline.
type Refresher interface {
	Run(ctx context.Context) (*services.MergeSummary, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr        string
	StaticDir   string
	CORSOrigins []string
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	logger     *utils.Logger
}

// NewServer builds the router. refresher may be nil, in which case
// POST /run-scrape answers 503.
func NewServer(opts Options, catalog *services.Catalog, refresher Refresher, logger *utils.Logger) *Server {
	h := &Handlers{catalog: catalog, refresher: refresher, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, LoggerMiddleware(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID"},
		MaxAge:         300,
	}))

	r.Get("/", h.Index)
	r.Get("/healthz", h.Health)
	r.Post("/run-scrape", h.RunScrape)

	r.Route("/api/sections", func(r chi.Router) {
		r.Get("/", h.ListSections)
		r.Get("/{key}", h.GetSection)
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Slog().Handler(), slog.LevelError),
		},
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("[web] Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: could not start server: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("[web] Stopping server")
	return s.httpServer.Shutdown(ctx)
}
