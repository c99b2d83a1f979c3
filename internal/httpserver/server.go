// Package httpserver exposes the collector's health and stats endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/capture"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/outbound"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/reconcile"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/visibility"
)

// Stats aggregates counters from every pipeline stage.
type Stats struct {
	Reconcile  reconcile.Stats     `json:"reconcile"`
	Visibility visibility.Stats    `json:"visibility"`
	Routing    capture.RouterStats `json:"routing"`
	Outbound   outbound.Stats      `json:"outbound"`
}

// StatsFunc returns the current pipeline stats snapshot.
type StatsFunc func() Stats

// Server serves the collector's observability endpoints.
type Server struct {
	stats      StatsFunc
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server on the given port.
func NewServer(port int, stats StatsFunc, logger *slog.Logger) *Server {
	s := &Server{
		stats:  stats,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", methodGet(s.handleHealth))
	mux.HandleFunc("/stats", methodGet(s.handleStats))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// methodGet restricts a handler to GET (and HEAD) requests, matching the
// behavior of the "GET /path" ServeMux patterns available in Go 1.22+.
func methodGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
