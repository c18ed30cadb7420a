// Package server exposes the analysis engine over HTTP: a synchronous
// analyze endpoint, asynchronous run start/poll, run history and health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/scout/pkg/runstore"
)

const defaultMaxBodyBytes = 1 << 20

// Config holds the server dependencies and settings.
type Config struct {
	Runner Runner
	Store  runstore.Store
	Logger *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// Server is the scout HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// New creates an HTTP server with all routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil || cfg.Store == nil {
		return nil, fmt.Errorf("server: runner and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	maxBody := cfg.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	h := &Handlers{
		runner:  cfg.Runner,
		store:   cfg.Store,
		logger:  cfg.Logger,
		version: cfg.Version,
		maxBody: maxBody,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", h.HandleAnalyze)
	mux.HandleFunc("POST /api/v1/runs", h.HandleCreateRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/history", h.HandleRunHistory)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = otelhttp.NewHandler(handler, "scout.http")
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}, nil
}

// ListenAndServe starts serving and blocks until shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
