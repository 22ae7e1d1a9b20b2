package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/raphaelgruber/quizsync-go/internal/evaluation"
	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/llm"
	"github.com/raphaelgruber/quizsync-go/internal/models"
	"github.com/raphaelgruber/quizsync-go/internal/service"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrInvalidTask),
		errors.Is(err, history.ErrInvalidVisit),
		errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrDeleted):
		return http.StatusGone
	case errors.Is(err, history.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrGraderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrFatalAPI), errors.Is(err, evaluation.ErrContractViolation):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("handler error", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf(format, args...)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return false
	}
	return true
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func optionalString(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// handleGenerate queues a generation job and answers 202. With ?sync=true it
// waits for the job and returns the created tasks; ?sync=ids returns only
// their identities.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}

	job, err := s.generation.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	mode := r.URL.Query().Get("sync")
	if mode == "" || mode == "false" {
		writeJSON(w, http.StatusAccepted, models.JobAccepted{
			Status:  "queued",
			JobID:   job.ID,
			Message: "Task generation queued in the background",
		})
		return
	}

	select {
	case <-job.Done():
	case <-r.Context().Done():
		return
	}

	view := job.Snapshot()
	if view.Status == service.JobStatusFailed && len(view.TaskIDs) == 0 {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: view.Error})
		return
	}
	if mode == "ids" {
		writeJSON(w, http.StatusOK, map[string][]string{"task_ids": view.TaskIDs})
		return
	}

	tasks, err := s.tasks.Tasks(r.Context(), view.TaskIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.generation.Jobs().ListJobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.generation.Jobs().GetJob(r.PathValue("id"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// =============================================================================
// TASKS
// =============================================================================

func (s *Server) handleUnitTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListByUnit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleEditTask(w http.ResponseWriter, r *http.Request) {
	var update models.TaskUpdate
	if !s.decode(w, r, &update) {
		return
	}
	task, err := s.tasks.Edit(r.Context(), r.PathValue("id"), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), r.PathValue("id"), optionalString(r, "user_id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EVALUATION
// =============================================================================

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req models.EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.tasks.Evaluate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	var ev models.AnswerEvent
	if !s.decode(w, r, &ev) {
		return
	}
	ev.TaskID = r.PathValue("id")
	stored, err := s.tasks.RecordAnswer(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// =============================================================================
// HISTORY
// =============================================================================

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.tasks.Versions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("version1") == "" || q.Get("version2") == "" {
		s.badRequest(w, "version1 and version2 are required")
		return
	}
	v1, err := intParam(r, "version1", 0)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	v2, err := intParam(r, "version2", 0)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	cmp, err := s.tasks.Compare(r.Context(), r.PathValue("id"), v1, v2)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleChangeHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	events, err := s.tasks.ChangeHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAnswerHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	events, err := s.tasks.AnswerHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.AnswerEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// =============================================================================
// ANALYTICS
// =============================================================================

func (s *Server) handleTaskStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analytics.TaskStatistics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRepositoryStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analytics.RepositoryStatistics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRepositoryEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.analytics.RepositoryEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handlePageVisit(w http.ResponseWriter, r *http.Request) {
	var visit models.PageVisit
	if !s.decode(w, r, &visit) {
		return
	}
	stored, err := s.tasks.RecordVisit(r.Context(), visit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}
