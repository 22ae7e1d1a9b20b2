package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

func TestAggregatorLifecycle(t *testing.T) {
	a := NewAggregator()
	a.AddChange(models.ChangeEvent{ID: "c1", TaskID: "t1", Kind: models.ChangeTaskCreated})
	a.AddChange(models.ChangeEvent{ID: "c2", TaskID: "t2", Kind: models.ChangeTaskCreated})
	a.AddChange(models.ChangeEvent{ID: "c3", TaskID: "t1", Kind: models.ChangeQuestionUpdated})
	a.AddChange(models.ChangeEvent{ID: "c4", TaskID: "t1", Kind: models.ChangeCorrectnessChanged})
	a.AddChange(models.ChangeEvent{ID: "c5", TaskID: "t2", Kind: models.ChangeTaskDeleted})

	assert.Equal(t, models.LifecycleCounts{Created: 2, Modified: 1, Deleted: 1, Active: 1, Edits: 2}, a.Lifecycle())

	stats := a.Statistics("r1")
	assert.InDelta(t, 50.0, stats.PercentModified, 1e-9)
	assert.InDelta(t, 50.0, stats.PercentDeleted, 1e-9)
}

func TestAggregatorIsIdempotentPerEvent(t *testing.T) {
	a := NewAggregator()
	ev := models.ChangeEvent{ID: "c1", TaskID: "t1", Kind: models.ChangeQuestionUpdated}
	a.AddChange(ev)
	a.AddChange(ev)
	ans := models.AnswerEvent{ID: "a1", TaskID: "t1", Result: models.ResultCorrect}
	a.AddAnswer(ans)
	a.AddAnswer(ans)

	assert.Equal(t, 1, a.Lifecycle().Edits)
	assert.Equal(t, 1, a.Answers().Total)
}

func TestAggregatorAnswers(t *testing.T) {
	a := NewAggregator()
	results := []models.AnswerResult{
		models.ResultCorrect, models.ResultCorrect, models.ResultIncorrect,
		models.ResultPartial, models.ResultIrrelevant,
	}
	for i, r := range results {
		a.AddAnswer(models.AnswerEvent{ID: string(rune('a' + i)), Result: r})
	}

	got := a.Answers()
	assert.Equal(t, 5, got.Total)
	assert.Equal(t, 2, got.Correct)
	assert.Equal(t, 1, got.Partial)
	assert.Equal(t, 1, got.Irrelevant)
	assert.InDelta(t, 0.4, got.SuccessRate, 1e-9)
}

func TestAggregatorEmpty(t *testing.T) {
	stats := NewAggregator().Statistics("r1")
	assert.Zero(t, stats.PercentModified)
	assert.Zero(t, stats.Answers.SuccessRate)
	assert.Empty(t, stats.Pages)
}

func TestAggregatorPages(t *testing.T) {
	a := NewAggregator()
	visit := func(id, page string, d time.Duration) models.PageVisit {
		return models.PageVisit{ID: id, Page: page, EnteredAt: models.At(epoch), LeftAt: models.At(epoch.Add(d))}
	}
	a.AddVisit(visit("v1", "quiz", 2*time.Second))
	a.AddVisit(visit("v2", "quiz", 4*time.Second))
	a.AddVisit(visit("v3", "editor", time.Second))

	pages := a.Pages()
	require.Len(t, pages, 2)
	assert.Equal(t, "editor", pages[0].Page)
	assert.Equal(t, "quiz", pages[1].Page)
	assert.Equal(t, 2, pages[1].Visits)
	assert.Equal(t, int64(6000), pages[1].TotalMs)
	assert.Equal(t, int64(2000), pages[1].MinMs)
	assert.Equal(t, int64(4000), pages[1].MaxMs)
}

func TestRecountMatchesIncrementalFold(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	incremental := NewAggregator()
	for i := 0; i < 4; i++ {
		task := createTask(t, rec)
		if i%2 == 0 {
			_, events, err := rec.Edit(ctx, task.ID, models.TaskUpdate{Question: strPtr("edited")})
			require.NoError(t, err)
			for _, ev := range events {
				incremental.AddChange(ev)
			}
		}
		if i == 3 {
			require.NoError(t, rec.Delete(ctx, task.ID, nil))
		}
		ev, err := rec.RecordAnswer(ctx, models.AnswerEvent{TaskID: task.ID, Result: models.ResultCorrect})
		require.NoError(t, err)
		incremental.AddAnswer(ev)
	}

	events, err := store.RepositoryEvents(ctx, "r1")
	require.NoError(t, err)
	for _, ev := range events.Changes {
		incremental.AddChange(ev)
	}

	recount := Recount(*events)
	assert.Equal(t, recount.Lifecycle, incremental.Lifecycle())
	assert.Equal(t, recount.Answers, incremental.Answers())
	assert.Equal(t, models.LifecycleCounts{Created: 4, Modified: 2, Deleted: 1, Active: 3, Edits: 2}, recount.Lifecycle)
	assert.InDelta(t, 50.0, recount.PercentModified, 1e-9)
	assert.InDelta(t, 25.0, recount.PercentDeleted, 1e-9)
}

func TestTaskStatistics(t *testing.T) {
	changes := []models.ChangeEvent{
		{ID: "c1", TaskID: "t1", Kind: models.ChangeTaskCreated},
		{ID: "c2", TaskID: "t1", Kind: models.ChangeOptionAdded},
		{ID: "c3", TaskID: "t1", Kind: models.ChangeTaskDeleted},
	}
	answers := []models.AnswerEvent{{ID: "a1", Result: models.ResultIncorrect}}

	stats := TaskStatistics("t1", 2, changes, answers)
	assert.Equal(t, 2, stats.Versions)
	assert.Equal(t, 1, stats.Edits)
	assert.True(t, stats.Deleted)
	assert.Equal(t, 1, stats.Answers.Incorrect)
	assert.Zero(t, stats.Answers.SuccessRate)
}
