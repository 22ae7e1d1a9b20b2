package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := epoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestRecorder(t *testing.T) (*Recorder, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	rec := NewRecorder(store, nil)
	rec.SetClock(steppingClock())
	return rec, store
}

func createTask(t *testing.T, rec *Recorder) models.Task {
	t.Helper()
	task, err := rec.Create(context.Background(), models.Task{
		Type:         models.TaskTypeMultipleChoice,
		Question:     "A?",
		Options:      mcOptions("o1"),
		UnitID:       "u1",
		RepositoryID: "r1",
	}, nil)
	require.NoError(t, err)
	return task
}

func strPtr(s string) *string { return &s }

func TestRecorderCreate(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	assert.NotEmpty(t, task.ID)
	assert.False(t, task.CreatedAt.IsZero())

	versions, err := store.ListVersions(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)

	changes, err := store.ListChanges(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeTaskCreated, changes[0].Kind)
	assert.Equal(t, "u1", changes[0].Metadata["unit_id"])
}

func TestRecorderCreateRejectsInvalidTask(t *testing.T) {
	rec, _ := newTestRecorder(t)
	_, err := rec.Create(context.Background(), models.Task{
		Type:     models.TaskTypeMultipleChoice,
		Question: "A?",
		Options:  []models.Option{{Text: "only", IsCorrect: true}},
	}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidTask)
}

func TestRecorderEditCreatesVersionAndEvents(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	updated, events, err := rec.Edit(ctx, task.ID, models.TaskUpdate{
		Question: strPtr("B?"),
		Options:  mcOptions("o2"),
		UserID:   strPtr("alice"),
	})
	require.NoError(t, err)
	assert.Equal(t, "B?", updated.Question)
	assert.Equal(t, []models.ChangeKind{models.ChangeQuestionUpdated, models.ChangeCorrectnessChanged}, kinds(events))
	for _, ev := range events {
		assert.Equal(t, 2, ev.Version)
		assert.Equal(t, "alice", *ev.UserID)
		assert.NotEmpty(t, ev.ID)
	}

	cmp, err := rec.CompareVersions(ctx, task.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.Difference{
		{Field: "question", Before: "A?", After: "B?"},
		{Field: "correct_option", Before: "Paris", After: "Lyon"},
	}, cmp.Differences)

	latest, err := store.LatestVersion(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestRecorderNoOpEditWritesNothing(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	_, events, err := rec.Edit(ctx, task.ID, models.TaskUpdate{Question: strPtr("A?")})
	require.NoError(t, err)
	assert.Empty(t, events)

	versions, err := store.ListVersions(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRecorderEditAssignsIDsToNewOptions(t *testing.T) {
	rec, _ := newTestRecorder(t)
	task := createTask(t, rec)

	opts := append(mcOptions("o1"), models.Option{Text: "Lille"})
	updated, events, err := rec.Edit(context.Background(), task.ID, models.TaskUpdate{Options: opts})
	require.NoError(t, err)
	require.Len(t, updated.Options, 4)
	assert.NotEmpty(t, updated.Options[3].ID)
	assert.Equal(t, []models.ChangeKind{models.ChangeOptionAdded}, kinds(events))
}

func TestRecorderEditInvalidLeavesTaskUnchanged(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	_, _, err := rec.Edit(ctx, task.ID, models.TaskUpdate{Options: []models.Option{{ID: "o1", Text: "Paris"}, {ID: "o2", Text: "Lyon"}}})
	assert.ErrorIs(t, err, models.ErrInvalidTask)

	latest, err := store.LatestVersion(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)
}

func TestRecorderEditRejectsRepeatedOptionIDs(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	_, events, err := rec.Edit(ctx, task.ID, models.TaskUpdate{Options: []models.Option{
		{ID: "o1", Text: "X", IsCorrect: true},
		{ID: "o1", Text: "Y"},
	}})
	assert.ErrorIs(t, err, models.ErrInvalidTask)
	assert.Empty(t, events)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Options, got.Options)

	changes, err := store.ListChanges(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.ChangeKind{models.ChangeTaskCreated}, kinds(changes))
}

func TestRecorderDelete(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	require.NoError(t, rec.Delete(ctx, task.ID, nil))
	require.NoError(t, rec.Delete(ctx, task.ID, nil))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	active, err := store.ListTasksByUnit(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	changes, err := store.ListChanges(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.ChangeKind{models.ChangeTaskDeleted, models.ChangeTaskCreated}, kinds(changes))

	_, _, err = rec.Edit(ctx, task.ID, models.TaskUpdate{Question: strPtr("C?")})
	assert.ErrorIs(t, err, ErrDeleted)
}

func TestRecorderUnknownTask(t *testing.T) {
	rec, _ := newTestRecorder(t)
	_, _, err := rec.Edit(context.Background(), "missing", models.TaskUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, rec.Delete(context.Background(), "missing", nil), ErrNotFound)
}

func TestRecorderRecordAnswer(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	ev, err := rec.RecordAnswer(ctx, models.AnswerEvent{TaskID: task.ID, Result: models.ResultCorrect, ChosenOptionID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, 1, ev.TaskVersion)
	assert.Equal(t, "r1", ev.RepositoryID)
	assert.NotEmpty(t, ev.ID)

	answers, err := store.ListAnswers(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
}

func TestRecorderRecordAnswerRejectsDeletedTask(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)
	require.NoError(t, rec.Delete(ctx, task.ID, nil))

	_, err := rec.RecordAnswer(ctx, models.AnswerEvent{TaskID: task.ID, Result: models.ResultCorrect, ChosenOptionID: "o1"})
	assert.ErrorIs(t, err, ErrDeleted)

	answers, err := store.ListAnswers(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestMemoryStoreRejectsDuplicates(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	err := store.InsertTask(ctx, task, models.Snapshot(task, 1, epoch, nil), nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	dup := models.Snapshot(task, 1, epoch, nil)
	assert.ErrorIs(t, store.CommitChange(ctx, task, &dup, nil), ErrAlreadyExists)
}

func TestRecorderSequencesIncrease(t *testing.T) {
	rec, store := newTestRecorder(t)
	rec.SetClock(func() time.Time { return epoch })
	ctx := context.Background()
	task := createTask(t, rec)

	for _, q := range []string{"B?", "C?", "D?"} {
		_, _, err := rec.Edit(ctx, task.ID, models.TaskUpdate{Question: strPtr(q)})
		require.NoError(t, err)
	}

	changes, err := store.ListChanges(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 4)
	for i := 1; i < len(changes); i++ {
		assert.Greater(t, changes[i-1].Sequence, changes[i].Sequence)
	}
	assert.Equal(t, "D?", *changes[0].NewValue)

	limited, err := store.ListChanges(ctx, task.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecorderRecordVisit(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	_, err := rec.RecordVisit(ctx, models.PageVisit{Page: "quiz", EnteredAt: models.At(epoch), LeftAt: models.At(epoch.Add(-time.Second))})
	assert.ErrorIs(t, err, ErrInvalidVisit)

	_, err = rec.RecordVisit(ctx, models.PageVisit{EnteredAt: models.At(epoch), LeftAt: models.At(epoch)})
	assert.ErrorIs(t, err, ErrInvalidVisit)

	v, err := rec.RecordVisit(ctx, models.PageVisit{Page: "quiz", EnteredAt: models.At(epoch), LeftAt: models.At(epoch.Add(3 * time.Second))})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
}

func TestRecorderConcurrentEditsKeepVersionsDense(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()
	task := createTask(t, rec)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := rec.Edit(ctx, task.ID, models.TaskUpdate{Question: strPtr("Q" + string(rune('a'+i)))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	versions, err := store.ListVersions(ctx, task.ID)
	require.NoError(t, err)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
	}
}
