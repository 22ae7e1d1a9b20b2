package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

type fakeScorer struct {
	calls []models.EvaluateRequest
	resp  *models.EvaluateResponse
	err   error
}

func (s *fakeScorer) EvaluateAnswer(ctx context.Context, taskID string, req models.EvaluateRequest) (*models.EvaluateResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type fakeRecorder struct {
	events []models.AnswerEvent
	err    error
}

func (r *fakeRecorder) RecordAnswer(ctx context.Context, ev models.AnswerEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func intPtr(i int) *int { return &i }

var choiceTask = models.Task{
	ID:           "t1",
	RepositoryID: "r1",
	Type:         models.TaskTypeMultipleChoice,
	Question:     "Capital of France?",
	Options: []models.Option{
		{ID: "o1", Text: "Paris", IsCorrect: true},
		{ID: "o2", Text: "Lyon"},
	},
}

var textTask = models.Task{
	ID:       "t2",
	Type:     models.TaskTypeFreeText,
	Question: "What does a mitochondrion do?",
	Options:  []models.Option{{ID: "r", Text: "Produces ATP", IsCorrect: true}},
}

func TestScoreResultTaxonomy(t *testing.T) {
	tests := []struct {
		score int
		want  models.AnswerResult
	}{
		{0, models.ResultCorrect},
		{1, models.ResultPartial},
		{2, models.ResultContradictory},
		{3, models.ResultIrrelevant},
	}
	for _, tt := range tests {
		got, err := ScoreResult(tt.score)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []int{-1, 4, 99} {
		_, err := ScoreResult(bad)
		assert.ErrorIs(t, err, ErrContractViolation, "score %d", bad)
	}
}

func TestMultipleChoiceCorrectIsLocal(t *testing.T) {
	scorer := &fakeScorer{}
	recorder := &fakeRecorder{}
	user := "alice"
	engine := NewEngine(scorer, recorder, nil)
	attempt := NewAttempt(choiceTask, &user)
	assert.Equal(t, StateUnanswered, attempt.State())

	ev, err := engine.Submit(context.Background(), attempt, Answer{OptionID: "o1"})
	require.NoError(t, err)

	assert.Equal(t, models.ResultCorrect, ev.Result)
	assert.Equal(t, StateEvaluated, attempt.State())
	assert.Empty(t, scorer.calls, "multiple choice is evaluated without the backend")
	require.Len(t, recorder.events, 1)
	assert.Equal(t, "o1", recorder.events[0].ChosenOptionID)
	assert.Equal(t, "r1", recorder.events[0].RepositoryID)
	assert.Equal(t, &user, recorder.events[0].UserID)
}

func TestMultipleChoiceIncorrectByText(t *testing.T) {
	scorer := &fakeScorer{resp: &models.EvaluateResponse{Feedback: "Lyon is the third largest city."}}
	engine := NewEngine(scorer, nil, nil)
	attempt := NewAttempt(choiceTask, nil)

	ev, err := engine.Submit(context.Background(), attempt, Answer{Text: " lyon "})
	require.NoError(t, err)
	assert.Equal(t, models.ResultIncorrect, ev.Result)
	assert.Equal(t, "o2", ev.Chosen.ID)

	assert.Equal(t, "Lyon is the third largest city.", engine.Explain(context.Background(), attempt))
	require.Len(t, scorer.calls, 1)
	assert.Equal(t, "Lyon", scorer.calls[0].StudentAnswer)

	out, ok := attempt.Outcome()
	require.True(t, ok)
	assert.Equal(t, "Lyon is the third largest city.", out.Feedback)
}

func TestExplainIsBestEffort(t *testing.T) {
	engine := NewEngine(&fakeScorer{err: errors.New("timeout")}, nil, nil)
	attempt := NewAttempt(choiceTask, nil)

	ev, err := engine.Submit(context.Background(), attempt, Answer{OptionID: "o2"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultIncorrect, ev.Result)
	assert.Empty(t, engine.Explain(context.Background(), attempt))
	assert.Equal(t, StateEvaluated, attempt.State())
}

func TestExplainSkipsCorrectAnswers(t *testing.T) {
	scorer := &fakeScorer{}
	engine := NewEngine(scorer, nil, nil)
	attempt := NewAttempt(choiceTask, nil)
	_, err := engine.Submit(context.Background(), attempt, Answer{OptionID: "o1"})
	require.NoError(t, err)

	assert.Empty(t, engine.Explain(context.Background(), attempt))
	assert.Empty(t, scorer.calls)
}

func TestUnknownOptionLeavesAttemptUnanswered(t *testing.T) {
	engine := NewEngine(&fakeScorer{}, nil, nil)
	attempt := NewAttempt(choiceTask, nil)

	_, err := engine.Submit(context.Background(), attempt, Answer{OptionID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Equal(t, StateUnanswered, attempt.State())
}

func TestFreeTextScores(t *testing.T) {
	for score, want := range map[int]models.AnswerResult{
		0: models.ResultCorrect,
		1: models.ResultPartial,
		2: models.ResultContradictory,
		3: models.ResultIrrelevant,
	} {
		scorer := &fakeScorer{resp: &models.EvaluateResponse{Feedback: "fb", Score: intPtr(score)}}
		attempt := NewAttempt(textTask, nil)

		ev, err := NewEngine(scorer, nil, nil).Submit(context.Background(), attempt, Answer{Text: "makes energy"})
		require.NoError(t, err)
		assert.Equal(t, want, ev.Result)
		assert.Equal(t, StateEvaluated, attempt.State())
		assert.Equal(t, "makes energy", scorer.calls[0].StudentAnswer)
	}
}

func TestFreeTextContractViolationStaysSubmitted(t *testing.T) {
	tests := []struct {
		name  string
		score *int
	}{
		{"out of range", intPtr(7)},
		{"negative", intPtr(-1)},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &fakeScorer{resp: &models.EvaluateResponse{Feedback: "??", Score: tt.score}}
			attempt := NewAttempt(textTask, nil)

			_, err := NewEngine(scorer, nil, nil).Submit(context.Background(), attempt, Answer{Text: "x"})
			assert.ErrorIs(t, err, ErrContractViolation)
			assert.Equal(t, StateSubmitted, attempt.State())
			_, ok := attempt.Outcome()
			assert.False(t, ok)
		})
	}
}

func TestBackendFailureIsResubmittable(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("503")}
	engine := NewEngine(scorer, nil, nil)
	attempt := NewAttempt(textTask, nil)

	_, err := engine.Submit(context.Background(), attempt, Answer{Text: "ATP"})
	assert.ErrorIs(t, err, ErrEvaluationFailed)
	assert.Equal(t, StateSubmitted, attempt.State())

	scorer.err = nil
	scorer.resp = &models.EvaluateResponse{Feedback: "exactly", Score: intPtr(0)}
	ev, err := engine.Submit(context.Background(), attempt, Answer{Text: "ATP"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultCorrect, ev.Result)

	_, err = engine.Submit(context.Background(), attempt, Answer{Text: "ATP"})
	assert.ErrorIs(t, err, ErrAlreadyEvaluated)
}

func TestRecorderFailureDoesNotFailEvaluation(t *testing.T) {
	engine := NewEngine(&fakeScorer{}, &fakeRecorder{err: errors.New("down")}, nil)
	ev, err := engine.Submit(context.Background(), NewAttempt(choiceTask, nil), Answer{OptionID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultCorrect, ev.Result)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Partially correct", Label(models.ResultPartial))
	assert.Equal(t, "Incorrect", Label(models.ResultIncorrect))
}
