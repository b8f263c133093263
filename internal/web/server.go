// Package web serves the importer over HTTP: CSV upload imports, the last
// run report, transcription lookups and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/courseimport/internal/config"
	"github.com/JonMunkholm/courseimport/internal/core"
	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/store"
	"github.com/JonMunkholm/courseimport/internal/web/middleware"
)

// DefaultMaxUploadSize caps an uploaded CSV (100MB).
const DefaultMaxUploadSize = 100 * 1024 * 1024

// Deps are the collaborators a Server needs.
type Deps struct {
	// Store receives imports and answers transcription lookups.
	Store store.Store

	// Options are the base import options; requests may toggle DryRun and
	// Update. OutputDir is the parent of the per-upload artifact directories.
	Options core.Options

	Limiter  *core.ImportLimiter
	Observer core.Observer

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the HTTP server for the course importer.
type Server struct {
	deps        Deps
	transcripts *store.Transcripts
	router      *chi.Mux
	server      *http.Server
	cfg         config.ServerConfig
	maxUpload   int64

	mu   sync.RWMutex
	last *core.Outcome
}

// NewServer creates a Server. maxUpload <= 0 uses DefaultMaxUploadSize.
func NewServer(deps Deps, cfg config.ServerConfig, maxUpload int64) *Server {
	if deps.Limiter == nil {
		deps.Limiter = core.NewImportLimiter(1, core.DefaultMaxWaitTime)
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	s := &Server{
		deps:      deps,
		router:    chi.NewRouter(),
		cfg:       cfg,
		maxUpload: maxUpload,
	}
	if deps.Store != nil {
		s.transcripts = store.NewTranscripts(deps.Store)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) logger() *slog.Logger { return logging.OrDefault(s.deps.Logger) }

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleReport)
	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/lessons/{id}/transcription", s.handleTranscription)
		r.Get("/imports/last", s.handleLastImport)
		r.With(middleware.APIKeyAuth(s.cfg.APIKeys)).Post("/imports", s.handleImport)
	})
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger().Info("starting server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running imports.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if drainErr := s.deps.Limiter.WaitForDrain(ctx); drainErr != nil {
		s.logger().Warn("imports still running at shutdown", "active", s.deps.Limiter.ActiveCount())
	}
	return err
}

func (s *Server) setLast(o core.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &o
}

func (s *Server) lastOutcome() (core.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return core.Outcome{}, false
	}
	return *s.last, true
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_imports": s.deps.Limiter.ActiveCount(),
		"time":           time.Now().UTC(),
	})
}
