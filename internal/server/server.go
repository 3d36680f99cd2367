// Package server exposes the scanner over HTTP: health, Prometheus metrics,
// and read-only access to the most recent scan bundle.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nightfall-quant/perpscan/internal/executor"
	"github.com/nightfall-quant/perpscan/internal/scanengine"
)

// Config holds everything New needs to wire the router.
type Config struct {
	Port     int
	Log      zerolog.Logger
	Executor *executor.Executor
	DevMode  bool
}

// Server is the scanner's HTTP surface. It holds no scan state of its own —
// the latest bundle is pushed in by the scheduler loop via SetLastScan.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger
	exec   *executor.Executor

	mu       sync.RWMutex
	lastScan *scanengine.Bundle
}

// New builds the router and wraps it in an http.Server bound to cfg.Port.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		exec:   cfg.Executor,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
	s.router.Route("/scan", func(r chi.Router) {
		r.Get("/last", s.handleLastScan)
	})
	if s.exec != nil {
		s.router.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolio)
		})
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetLastScan publishes bundle as the result future /scan/last calls return.
func (s *Server) SetLastScan(bundle *scanengine.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan = bundle
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLastScan(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	bundle := s.lastScan
	s.mu.RUnlock()

	if bundle == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no scan has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exec.Snapshot())
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
