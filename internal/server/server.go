// Package server exposes the sanitizer over HTTP.
//
// Routes:
//
//	POST /v1/sanitize   multipart upload in field "file"; ?ext= overrides the extension
//	GET  /v1/formats    registered formats
//	GET  /healthz       liveness
//	GET  /metrics       Prometheus exposition
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/varalys/blockscrub/internal/metrics"
	"github.com/varalys/blockscrub/internal/registry"
)

// Config holds server settings.
type Config struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TempDir      string
	Logger       zerolog.Logger
	Metrics      *metrics.Collector
}

// Server routes requests to the current registry. The registry can be
// swapped while requests are in flight; each request keeps the registry it
// started with.
type Server struct {
	cfg     Config
	reg     atomic.Pointer[registry.Registry]
	router  *mux.Router
	logger  zerolog.Logger
	metrics *metrics.Collector
	started time.Time
}

// New builds a Server for reg.
func New(reg *registry.Registry, cfg Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "server").Logger(),
		metrics: cfg.Metrics,
		started: time.Now(),
	}
	s.SetRegistry(reg)
	s.setupRouter()
	return s
}

// SetRegistry atomically replaces the active registry.
func (s *Server) SetRegistry(reg *registry.Registry) {
	s.reg.Store(reg)
	s.metrics.SetFormats(reg.Count())
}

// Registry returns the active registry.
func (s *Server) Registry() *registry.Registry { return s.reg.Load() }

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.recoverMiddleware, s.loggingMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sanitize", s.handleSanitize).Methods(http.MethodPost)
	v1.HandleFunc("/formats", s.handleFormats).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.sendError(w, req, http.StatusNotFound, "NotFound", "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.sendError(w, req, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
	s.router = r
}

// ListenAndServe listens on the configured address and serves until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Int("formats", s.Registry().Count()).Msg("listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
