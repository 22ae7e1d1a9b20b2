package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/quizsync-go/internal/evaluation"
	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/llm"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var (
	// ErrGraderUnavailable is returned by Evaluate when no grader is configured.
	ErrGraderUnavailable = errors.New("grader unavailable")
	// ErrInvalidAnswer is returned for answer events that fail validation.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// TaskService reads, edits and evaluates tasks. All writes go through the
// history recorder.
type TaskService struct {
	store    history.Store
	recorder *history.Recorder
	grader   llm.Grader
	logger   *slog.Logger
}

// NewTaskService creates a task service. grader may be nil, in which case
// Evaluate fails with ErrGraderUnavailable.
func NewTaskService(store history.Store, recorder *history.Recorder, grader llm.Grader, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{store: store, recorder: recorder, grader: grader, logger: logger}
}

// Get returns a task, including soft-deleted ones.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Tasks loads tasks by ID in order, skipping deleted ones.
func (s *TaskService) Tasks(ctx context.Context, ids []string) ([]models.Task, error) {
	tasks := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if !task.IsDeleted() {
			tasks = append(tasks, *task)
		}
	}
	return tasks, nil
}

// ListByUnit returns the active tasks of a unit, newest first.
func (s *TaskService) ListByUnit(ctx context.Context, unitID string) ([]models.Task, error) {
	return s.store.ListTasksByUnit(ctx, unitID)
}

// Edit applies a partial update.
func (s *TaskService) Edit(ctx context.Context, id string, update models.TaskUpdate) (models.Task, error) {
	task, _, err := s.recorder.Edit(ctx, id, update)
	return task, err
}

// Delete soft-deletes a task.
func (s *TaskService) Delete(ctx context.Context, id string, user *string) error {
	return s.recorder.Delete(ctx, id, user)
}

// Versions lists a task's versions without their options.
func (s *TaskService) Versions(ctx context.Context, id string) ([]models.TaskVersion, error) {
	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		versions[i].Options = nil
	}
	return versions, nil
}

// Compare compares two versions of a task in argument order.
func (s *TaskService) Compare(ctx context.Context, id string, v1, v2 int) (*models.Comparison, error) {
	return s.recorder.CompareVersions(ctx, id, v1, v2)
}

// ChangeHistory returns a task's change events, newest first.
func (s *TaskService) ChangeHistory(ctx context.Context, id string, limit int) ([]models.ChangeEvent, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListChanges(ctx, id, limit)
}

// AnswerHistory returns a task's answer events, newest first.
func (s *TaskService) AnswerHistory(ctx context.Context, id string, limit int) ([]models.AnswerEvent, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAnswers(ctx, id, limit)
}

// Evaluate grades an answer. Free-text answers are scored 0-3 and recorded as
// answer events. For multiple-choice tasks the student answer is the chosen
// option and only an explanation is returned; the client evaluates those
// locally and records them itself.
func (s *TaskService) Evaluate(ctx context.Context, id string, req models.EvaluateRequest) (*models.EvaluateResponse, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.IsDeleted() {
		return nil, fmt.Errorf("%w: %s", history.ErrDeleted, id)
	}
	if s.grader == nil {
		return nil, ErrGraderUnavailable
	}

	if task.Type == models.TaskTypeMultipleChoice {
		feedback, err := s.grader.Explain(ctx, *task, req.StudentAnswer)
		if err != nil {
			return nil, fmt.Errorf("explain answer: %w", err)
		}
		return &models.EvaluateResponse{Feedback: feedback}, nil
	}

	grade, err := s.grader.Grade(ctx, *task, req.StudentAnswer)
	if err != nil {
		return nil, fmt.Errorf("grade answer: %w", err)
	}
	result, err := evaluation.ScoreResult(grade.Score)
	if err != nil {
		return nil, err
	}

	if _, err := s.recorder.RecordAnswer(ctx, models.AnswerEvent{
		TaskID:   id,
		UserID:   req.UserID,
		Result:   result,
		Answer:   req.StudentAnswer,
		Feedback: grade.Feedback,
	}); err != nil {
		s.logger.Warn("failed to record answer", "task_id", id, "error", err)
	}

	score := grade.Score
	return &models.EvaluateResponse{Feedback: grade.Feedback, Score: &score}, nil
}

// RecordAnswer stores a client-evaluated answer against the task's current version.
func (s *TaskService) RecordAnswer(ctx context.Context, ev models.AnswerEvent) (models.AnswerEvent, error) {
	switch ev.Result {
	case models.ResultCorrect, models.ResultIncorrect, models.ResultPartial,
		models.ResultContradictory, models.ResultIrrelevant:
	default:
		return models.AnswerEvent{}, fmt.Errorf("%w: unknown result %q", ErrInvalidAnswer, ev.Result)
	}
	return s.recorder.RecordAnswer(ctx, ev)
}

// RecordVisit stores a page visit.
func (s *TaskService) RecordVisit(ctx context.Context, v models.PageVisit) (models.PageVisit, error) {
	return s.recorder.RecordVisit(ctx, v)
}
