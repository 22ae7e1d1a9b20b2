// Package evaluation classifies submitted answers: multiple-choice answers
// locally, free-text answers through the backend's scoring call.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// State is the lifecycle of one answer attempt.
type State string

const (
	StateUnanswered State = "unanswered"
	StateSubmitted  State = "submitted"
	StateEvaluating State = "evaluating"
	StateEvaluated  State = "evaluated"
)

var (
	// ErrContractViolation is returned when the backend scores outside 0-3.
	ErrContractViolation = errors.New("evaluation contract violation")
	// ErrEvaluationFailed wraps backend failures. The attempt can be resubmitted.
	ErrEvaluationFailed = errors.New("evaluation failed")
	// ErrUnknownOption is returned when the chosen option is not part of the task.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInFlight is returned when an attempt is submitted while being evaluated.
	ErrInFlight = errors.New("evaluation already in progress")
	// ErrAlreadyEvaluated is returned when an evaluated attempt is submitted again.
	ErrAlreadyEvaluated = errors.New("attempt already evaluated")
)

// ContractViolationError carries the offending score.
type ContractViolationError struct {
	Score *int
}

func (e *ContractViolationError) Error() string {
	if e.Score == nil {
		return "evaluation contract violation: free-text evaluation returned no score"
	}
	return fmt.Sprintf("evaluation contract violation: score %d outside 0-3", *e.Score)
}

// Is matches ErrContractViolation.
func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}

// ScoreResult maps a backend score to its result. Anything outside 0-3 is a
// contract violation and is never coerced.
func ScoreResult(score int) (models.AnswerResult, error) {
	switch score {
	case 0:
		return models.ResultCorrect, nil
	case 1:
		return models.ResultPartial, nil
	case 2:
		return models.ResultContradictory, nil
	case 3:
		return models.ResultIrrelevant, nil
	}
	return "", &ContractViolationError{Score: &score}
}

// Label is the user-facing text for a result.
func Label(r models.AnswerResult) string {
	switch r {
	case models.ResultCorrect:
		return "Correct"
	case models.ResultIncorrect:
		return "Incorrect"
	case models.ResultPartial:
		return "Partially correct"
	case models.ResultContradictory:
		return "Contradicts the reference answer"
	case models.ResultIrrelevant:
		return "Not relevant to the question"
	}
	return string(r)
}

// Scorer is the backend evaluation call.
type Scorer interface {
	EvaluateAnswer(ctx context.Context, taskID string, req models.EvaluateRequest) (*models.EvaluateResponse, error)
}

// Recorder stores answer events for locally evaluated answers.
type Recorder interface {
	RecordAnswer(ctx context.Context, event models.AnswerEvent) error
}

// Answer is a submission: an option for multiple choice, text for free text.
// A multiple-choice answer may name the option by ID or by its text.
type Answer struct {
	OptionID string
	Text     string
}

// Attempt is one user's in-progress answer to one task.
type Attempt struct {
	Task   models.Task
	UserID *string

	mu       sync.Mutex
	state    State
	answer   Answer
	result   models.AnswerResult
	feedback string
	score    *int
}

// NewAttempt starts an unanswered attempt.
func NewAttempt(task models.Task, userID *string) *Attempt {
	return &Attempt{Task: task, UserID: userID, state: StateUnanswered}
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Outcome returns the evaluation once the attempt is EVALUATED.
func (a *Attempt) Outcome() (*Evaluation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateEvaluated {
		return nil, false
	}
	return &Evaluation{TaskID: a.Task.ID, Result: a.result, Feedback: a.feedback, Score: a.score}, true
}

// Evaluation is the outcome of an evaluated attempt.
type Evaluation struct {
	TaskID   string
	Result   models.AnswerResult
	Feedback string
	Score    *int
	Chosen   *models.Option
}

// Engine evaluates attempts.
type Engine struct {
	scorer   Scorer
	recorder Recorder
	logger   *slog.Logger
}

// NewEngine creates an engine. recorder may be nil.
func NewEngine(scorer Scorer, recorder Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{scorer: scorer, recorder: recorder, logger: logger}
}

// begin moves the attempt to EVALUATING. Failures fall back to SUBMITTED.
func (a *Attempt) begin(ans Answer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateEvaluating:
		return ErrInFlight
	case StateEvaluated:
		return ErrAlreadyEvaluated
	}
	a.answer = ans
	a.state = StateEvaluating
	return nil
}

func (a *Attempt) fail() {
	a.mu.Lock()
	a.state = StateSubmitted
	a.mu.Unlock()
}

func (a *Attempt) reset() {
	a.mu.Lock()
	a.state = StateUnanswered
	a.mu.Unlock()
}

func (a *Attempt) complete(result models.AnswerResult, feedback string, score *int) {
	a.mu.Lock()
	a.result = result
	a.feedback = feedback
	a.score = score
	a.state = StateEvaluated
	a.mu.Unlock()
}

// Submit evaluates ans. Multiple-choice answers are compared locally; free-text
// answers are scored by the backend. On backend failure or a contract violation
// the attempt stays SUBMITTED and may be submitted again.
func (e *Engine) Submit(ctx context.Context, a *Attempt, ans Answer) (*Evaluation, error) {
	if err := a.begin(ans); err != nil {
		return nil, err
	}

	switch a.Task.Type {
	case models.TaskTypeMultipleChoice:
		return e.evaluateChoice(ctx, a, ans)
	case models.TaskTypeFreeText:
		return e.evaluateText(ctx, a, ans)
	}
	a.fail()
	return nil, fmt.Errorf("%w: unsupported task type %q", models.ErrInvalidTask, a.Task.Type)
}

func (e *Engine) evaluateChoice(ctx context.Context, a *Attempt, ans Answer) (*Evaluation, error) {
	chosen, ok := chosenOption(a.Task, ans)
	if !ok {
		a.reset()
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, firstNonEmpty(ans.OptionID, ans.Text))
	}
	correct, ok := a.Task.CorrectOption()
	if !ok {
		a.fail()
		return nil, fmt.Errorf("%w: task %s has no correct option", models.ErrInvalidTask, a.Task.ID)
	}

	result := models.ResultIncorrect
	if chosen.Text == correct.Text {
		result = models.ResultCorrect
	}
	a.complete(result, "", nil)

	e.record(ctx, a, models.AnswerEvent{
		Result:         result,
		ChosenOptionID: chosen.ID,
		Answer:         chosen.Text,
	})
	return &Evaluation{TaskID: a.Task.ID, Result: result, Chosen: &chosen}, nil
}

func (e *Engine) evaluateText(ctx context.Context, a *Attempt, ans Answer) (*Evaluation, error) {
	resp, err := e.scorer.EvaluateAnswer(ctx, a.Task.ID, models.EvaluateRequest{
		StudentAnswer: ans.Text,
		UserID:        a.UserID,
	})
	if err != nil {
		a.fail()
		return nil, fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
	}
	if resp.Score == nil {
		a.fail()
		return nil, &ContractViolationError{}
	}

	result, err := ScoreResult(*resp.Score)
	if err != nil {
		a.fail()
		e.logger.Error("backend returned score outside taxonomy", "task_id", a.Task.ID, "score", *resp.Score)
		return nil, err
	}

	a.complete(result, resp.Feedback, resp.Score)
	return &Evaluation{TaskID: a.Task.ID, Result: result, Feedback: resp.Feedback, Score: resp.Score}, nil
}

// Explain requests a feedback explanation for an incorrect multiple-choice
// answer. It is best-effort: failures are logged and yield an empty string.
func (e *Engine) Explain(ctx context.Context, a *Attempt) string {
	a.mu.Lock()
	state, result, answer := a.state, a.result, a.answer
	a.mu.Unlock()

	if state != StateEvaluated || result != models.ResultIncorrect {
		return ""
	}
	chosen, _ := chosenOption(a.Task, answer)
	resp, err := e.scorer.EvaluateAnswer(ctx, a.Task.ID, models.EvaluateRequest{
		StudentAnswer: chosen.Text,
		UserID:        a.UserID,
	})
	if err != nil {
		e.logger.Warn("feedback request failed", "task_id", a.Task.ID, "error", err)
		return ""
	}

	a.mu.Lock()
	a.feedback = resp.Feedback
	a.mu.Unlock()
	return resp.Feedback
}

func (e *Engine) record(ctx context.Context, a *Attempt, ev models.AnswerEvent) {
	if e.recorder == nil {
		return
	}
	ev.TaskID = a.Task.ID
	ev.RepositoryID = a.Task.RepositoryID
	ev.UserID = a.UserID
	if err := e.recorder.RecordAnswer(ctx, ev); err != nil {
		e.logger.Warn("failed to record answer", "task_id", a.Task.ID, "error", err)
	}
}

func chosenOption(task models.Task, ans Answer) (models.Option, bool) {
	if ans.OptionID != "" {
		return task.Option(ans.OptionID)
	}
	text := strings.TrimSpace(ans.Text)
	for _, o := range task.Options {
		if strings.EqualFold(strings.TrimSpace(o.Text), text) {
			return o, true
		}
	}
	return models.Option{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
