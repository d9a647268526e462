// Package server exposes usage computation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pario-ai/meter/pkg/config"
	"github.com/pario-ai/meter/pkg/models"
	"github.com/pario-ai/meter/pkg/usage"
)

// UsageComputer computes usage for the current billing period.
type UsageComputer interface {
	ComputeUsage(ctx context.Context) (models.UsageResult, error)
}

// Server is the meter HTTP API.
type Server struct {
	cfg    *config.Config
	usage  UsageComputer
	logger zerolog.Logger
	router chi.Router
}

// New creates a Server. metricsHandler is mounted at /metrics when non-nil.
func New(cfg *config.Config, u UsageComputer, logger zerolog.Logger, metricsHandler http.Handler) *Server {
	s := &Server{
		cfg:    cfg,
		usage:  u,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(newLoggingMiddleware(logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(newCORSMiddleware(cfg.CORS.AllowedOrigins))

	s.router.Get("/usage", s.handleUsage)
	s.router.Get("/health", s.handleHealth)
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Listen).Msg("meter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// UsageResponse is the body returned by GET /usage.
type UsageResponse struct {
	Usage   []models.UsageEntry `json:"usage"`
	Status  int                 `json:"status"`
	Skipped int                 `json:"skipped"`
}

// ErrorResponse is the body returned when usage cannot be computed.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	result, err := s.usage.ComputeUsage(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, usage.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Status: status})
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Usage:   result.Entries,
		Status:  http.StatusOK,
		Skipped: len(result.Skipped),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// newCORSMiddleware allows cross-origin requests from the given origins.
// "*" allows any origin.
func newCORSMiddleware(origins []string) func(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !(allowAll || allowed[origin]) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
