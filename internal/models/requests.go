package models

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest indicates a request failed validation before it was sent.
var ErrInvalidRequest = errors.New("invalid request")

// GenerateRequest asks the backend to generate tasks for a unit.
type GenerateRequest struct {
	UnitID      string   `json:"unit_id"`
	DocumentIDs []string `json:"document_ids"`
	NumTasks    int      `json:"num_tasks"`
	TaskType    TaskType `json:"task_type"`
}

// Validate checks the request preconditions.
func (r GenerateRequest) Validate() error {
	if r.UnitID == "" {
		return fmt.Errorf("%w: unit_id is required", ErrInvalidRequest)
	}
	if len(r.DocumentIDs) == 0 {
		return fmt.Errorf("%w: at least one document is required", ErrInvalidRequest)
	}
	if r.NumTasks < 1 {
		return fmt.Errorf("%w: num_tasks must be at least 1, got %d", ErrInvalidRequest, r.NumTasks)
	}
	if !r.TaskType.Valid() {
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidRequest, r.TaskType)
	}
	return nil
}

// JobAccepted is the body the reference backend returns for queued generation.
type JobAccepted struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

// EvaluateRequest submits an answer for backend evaluation.
type EvaluateRequest struct {
	StudentAnswer string  `json:"student_answer"`
	UserID        *string `json:"user_id,omitempty"`
}

// EvaluateResponse carries feedback and, for free-text tasks, a score 0-3.
type EvaluateResponse struct {
	Feedback string `json:"feedback"`
	Score    *int   `json:"score,omitempty"`
}

// TaskUpdate is a partial edit. Nil fields are left unchanged.
type TaskUpdate struct {
	Question *string  `json:"question,omitempty"`
	Options  []Option `json:"options,omitempty"`
	UserID   *string  `json:"user_id,omitempty"`
}

// Apply returns a copy of t with the update applied.
func (u TaskUpdate) Apply(t Task) Task {
	next := t.Clone()
	if u.Question != nil {
		next.Question = *u.Question
	}
	if u.Options != nil {
		next.Options = append([]Option(nil), u.Options...)
	}
	return next
}
