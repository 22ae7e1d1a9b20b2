package generation

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/quizsync-go/internal/client"
	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClock advances instantly whenever a timer starts. With hold set, timers never fire.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	hold  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer() backoff.Timer {
	return &fakeTimer{clock: c}
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeTimer struct {
	clock *fakeClock
	ch    chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	t.ch = make(chan time.Time, 1)
	if t.clock.hold {
		return
	}
	t.clock.waits = append(t.clock.waits, d)
	t.clock.now = t.clock.now.Add(d)
	t.ch <- t.clock.now
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func noJitter(time.Duration) time.Duration { return 0 }

func testConfig() config.ReconcileConfig {
	return config.DefaultReconcile()
}

func mcTask(id string, created time.Time) models.Task {
	return models.Task{
		ID:       id,
		Type:     models.TaskTypeMultipleChoice,
		Question: "Question " + id + "?",
		Options: []models.Option{
			{ID: id + "-a", Text: "right", IsCorrect: true},
			{ID: id + "-b", Text: "wrong"},
		},
		UnitID:    "u1",
		CreatedAt: models.At(created),
	}
}

// fakeBackend scripts submit and unit fetch responses by call number (1-based).
type fakeBackend struct {
	mu        sync.Mutex
	submit    func(call int) (*client.RawResponse, error)
	unit      func(call int) ([]models.Task, error)
	tasks     map[string]models.Task
	submits   int
	unitCalls int
	getCalls  int
}

func (b *fakeBackend) GenerateForUnit(ctx context.Context, req models.GenerateRequest) (*client.RawResponse, error) {
	b.mu.Lock()
	b.submits++
	call := b.submits
	b.mu.Unlock()
	return b.submit(call)
}

func (b *fakeBackend) TasksByUnit(ctx context.Context, unitID string) ([]models.Task, error) {
	b.mu.Lock()
	b.unitCalls++
	call := b.unitCalls
	b.mu.Unlock()
	if b.unit == nil {
		return nil, nil
	}
	return b.unit(call)
}

func (b *fakeBackend) GetTask(ctx context.Context, id string) (*models.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls++
	t, ok := b.tasks[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return &t, nil
}

func (b *fakeBackend) counts() (submits, unitCalls int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits, b.unitCalls
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) levels() []Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := make([]Level, len(r.items))
	for i, n := range r.items {
		levels[i] = n.Level
	}
	return levels
}

func (r *recordingNotifier) last() Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}
