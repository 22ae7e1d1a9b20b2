package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

func TestJobManagerLifecycle(t *testing.T) {
	m := NewJobManager(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	older := m.CreateJob(models.GenerateRequest{UnitID: "u1", NumTasks: 2})
	newer := m.CreateJob(models.GenerateRequest{UnitID: "u2", NumTasks: 1})
	assert.Len(t, older.ID, 8)
	assert.Equal(t, 2, older.Snapshot().Total)

	views := m.ListJobs()
	require.Len(t, views, 2)
	assert.Equal(t, newer.ID, views[0].ID)
	assert.Equal(t, older.ID, views[1].ID)

	m.SetRunning(older)
	m.AddTasks(older, "t1", "t2")
	m.Complete(older)
	view := older.Snapshot()
	assert.Equal(t, JobStatusCompleted, view.Status)
	assert.Equal(t, []string{"t1", "t2"}, view.TaskIDs)
	assert.Equal(t, 2, view.Progress)
	require.NotNil(t, view.CompletedAt)
	assert.True(t, view.CompletedAt.After(view.StartedAt))

	m.Fail(newer, errors.New("boom"))
	assert.Equal(t, JobStatusFailed, newer.Snapshot().Status)
	assert.Equal(t, "boom", newer.Snapshot().Error)

	for _, job := range []*Job{older, newer} {
		select {
		case <-job.Done():
		default:
			t.Fatalf("job %s not marked done", job.ID)
		}
	}

	assert.Same(t, older, m.GetJob(older.ID))
	assert.Nil(t, m.GetJob("missing"))
}
