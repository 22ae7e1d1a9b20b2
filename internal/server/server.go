// Package server exposes the reference backend over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/quizsync-go/internal/service"
)

// Server wires the backend services to HTTP routes.
type Server struct {
	generation *service.GenerationService
	tasks      *service.TaskService
	analytics  *service.AnalyticsService
	logger     *slog.Logger
	mux        *http.ServeMux
}

// New creates a server and registers its routes.
func New(generation *service.GenerationService, tasks *service.TaskService, analytics *service.AnalyticsService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		generation: generation,
		tasks:      tasks,
		analytics:  analytics,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/tasks/generate-for-unit", s.handleGenerate)
	s.mux.HandleFunc("GET /api/units/{id}/tasks", s.handleUnitTasks)

	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PATCH /api/tasks/{id}", s.handleEditTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("POST /api/tasks/{id}/answers", s.handleRecordAnswer)
	s.mux.HandleFunc("GET /api/tasks/{id}/versions", s.handleVersions)
	s.mux.HandleFunc("GET /api/tasks/{id}/compare", s.handleCompare)
	s.mux.HandleFunc("GET /api/tasks/{id}/change-history", s.handleChangeHistory)
	s.mux.HandleFunc("GET /api/tasks/{id}/answer-history", s.handleAnswerHistory)
	s.mux.HandleFunc("GET /api/tasks/{id}/statistics", s.handleTaskStatistics)

	s.mux.HandleFunc("GET /api/repositories/{id}/statistics", s.handleRepositoryStatistics)
	s.mux.HandleFunc("GET /api/repositories/{id}/events", s.handleRepositoryEvents)
	s.mux.HandleFunc("POST /api/page-visits", s.handlePageVisit)

	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
}

// Handler returns the routes wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.logger)(RecoverMiddleware(s.logger)(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout and stops running generation jobs.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for synchronous generation
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if cerr := s.generation.Close(shutdownCtx); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
