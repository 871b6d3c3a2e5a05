// Package statusd exposes the run progress on a local HTTP endpoint so the
// operator can check on a long daily run without reading logs.
package statusd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Andromeda-12/statify/internal/acquire"
)

// Server serves /healthz and /status.
type Server struct {
	addr     string
	progress *acquire.Progress
	logger   *slog.Logger
	srv      *http.Server
}

// New creates a status server reading from progress.
func New(addr string, progress *acquire.Progress, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, progress: progress, logger: logger}
}

// Start begins listening in the background. Errors other than a clean
// shutdown are logged, never escalated: the status endpoint is an observer,
// not a dependency of the run.
func (s *Server) Start() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("statusd: listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("statusd: serve failed", "error", err)
		}
	}()
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("statusd: shutdown", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.progress.Snapshot()); err != nil {
		s.logger.Warn("statusd: encode status", "error", err)
	}
}
