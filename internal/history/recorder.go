package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Recorder is the single writer of task state and history.
// Edits are serialized so version numbers stay dense and ordered per task.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	lastSeq int64
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, now: time.Now, logger: logger}
}

// SetClock replaces the time source (for testing).
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// nextSeq returns a strictly increasing sequence number. Seeding from the clock
// keeps it increasing across restarts. Caller must hold r.mu.
func (r *Recorder) nextSeq(at time.Time) int64 {
	r.lastSeq = max(r.lastSeq+1, at.UnixNano())
	return r.lastSeq
}

// Create stores a generated task as version 1 with a creation event.
func (r *Recorder) Create(ctx context.Context, task models.Task, user *string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	task = task.Clone()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	assignOptionIDs(task.Options)
	task.CreatedAt = models.At(now)
	task.UpdatedAt = models.At(now)
	task.DeletedAt = nil
	if err := task.Validate(); err != nil {
		return models.Task{}, err
	}

	version := models.Snapshot(task, 1, now, user)
	event := models.ChangeEvent{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		RepositoryID: task.RepositoryID,
		Kind:         models.ChangeTaskCreated,
		Version:      1,
		NewValue:     ptr(task.Question),
		Metadata:     map[string]string{"type": string(task.Type), "unit_id": task.UnitID},
		UserID:       user,
		Timestamp:    models.At(now),
		Sequence:     r.nextSeq(now),
	}

	if err := r.store.InsertTask(ctx, task, version, []models.ChangeEvent{event}); err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	r.logger.Debug("task created", "task_id", task.ID, "unit_id", task.UnitID)
	return task, nil
}

// Edit applies update. A changed task gets the next version and one change
// event per changed field. An edit that changes nothing writes nothing and
// returns no events.
func (r *Recorder) Edit(ctx context.Context, id string, update models.TaskUpdate) (models.Task, []models.ChangeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, nil, err
	}
	if current.IsDeleted() {
		return models.Task{}, nil, fmt.Errorf("%w: %s", ErrDeleted, id)
	}

	next := update.Apply(*current)
	assignOptionIDs(next.Options)
	if err := next.Validate(); err != nil {
		return models.Task{}, nil, err
	}

	events := Diff(*current, next)
	if len(events) == 0 {
		return *current, nil, nil
	}

	latest, err := r.store.LatestVersion(ctx, id)
	if err != nil {
		return models.Task{}, nil, fmt.Errorf("latest version: %w", err)
	}

	now := r.now().UTC()
	next.UpdatedAt = models.At(now)
	version := models.Snapshot(next, latest+1, now, update.UserID)
	for i := range events {
		events[i].ID = uuid.NewString()
		events[i].Version = version.Version
		events[i].UserID = update.UserID
		events[i].Timestamp = models.At(now)
		events[i].Sequence = r.nextSeq(now)
	}

	if err := r.store.CommitChange(ctx, next, &version, events); err != nil {
		return models.Task{}, nil, fmt.Errorf("commit edit: %w", err)
	}
	r.logger.Debug("task edited", "task_id", id, "version", version.Version, "changes", len(events))
	return next, events, nil
}

// Delete soft-deletes a task with a terminal event. History is kept.
// Deleting an already deleted task is a no-op.
func (r *Recorder) Delete(ctx context.Context, id string, user *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, err := r.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.IsDeleted() {
		return nil
	}
	latest, err := r.store.LatestVersion(ctx, id)
	if err != nil {
		return fmt.Errorf("latest version: %w", err)
	}

	now := r.now().UTC()
	deletedAt := models.At(now)
	task.DeletedAt = &deletedAt
	task.UpdatedAt = deletedAt

	event := models.ChangeEvent{
		ID:           uuid.NewString(),
		TaskID:       id,
		RepositoryID: task.RepositoryID,
		Kind:         models.ChangeTaskDeleted,
		Version:      latest,
		OldValue:     ptr(task.Question),
		UserID:       user,
		Timestamp:    deletedAt,
		Sequence:     r.nextSeq(now),
	}
	if err := r.store.CommitChange(ctx, *task, nil, []models.ChangeEvent{event}); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	r.logger.Debug("task deleted", "task_id", id)
	return nil
}

// RecordAnswer appends an answer event against the task's current version.
func (r *Recorder) RecordAnswer(ctx context.Context, ev models.AnswerEvent) (models.AnswerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, err := r.store.GetTask(ctx, ev.TaskID)
	if err != nil {
		return models.AnswerEvent{}, err
	}
	if task.IsDeleted() {
		return models.AnswerEvent{}, fmt.Errorf("%w: %s", ErrDeleted, ev.TaskID)
	}
	if ev.TaskVersion == 0 {
		if ev.TaskVersion, err = r.store.LatestVersion(ctx, ev.TaskID); err != nil {
			return models.AnswerEvent{}, fmt.Errorf("latest version: %w", err)
		}
	}

	now := r.now().UTC()
	ev.ID = uuid.NewString()
	ev.RepositoryID = task.RepositoryID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = models.At(now)
	}
	ev.Sequence = r.nextSeq(now)

	if err := r.store.InsertAnswer(ctx, ev); err != nil {
		return models.AnswerEvent{}, fmt.Errorf("insert answer: %w", err)
	}
	return ev, nil
}

// RecordVisit appends a page visit.
func (r *Recorder) RecordVisit(ctx context.Context, v models.PageVisit) (models.PageVisit, error) {
	if v.Page == "" {
		return models.PageVisit{}, fmt.Errorf("%w: page is required", ErrInvalidVisit)
	}
	if v.EnteredAt.IsZero() || v.LeftAt.Before(v.EnteredAt.Time) {
		return models.PageVisit{}, fmt.Errorf("%w: left_at precedes entered_at", ErrInvalidVisit)
	}
	v.ID = uuid.NewString()
	if err := r.store.InsertVisit(ctx, v); err != nil {
		return models.PageVisit{}, fmt.Errorf("insert visit: %w", err)
	}
	return v, nil
}

// CompareVersions loads two versions of a task and compares them in argument order.
func (r *Recorder) CompareVersions(ctx context.Context, taskID string, v1, v2 int) (*models.Comparison, error) {
	first, err := r.store.GetVersion(ctx, taskID, v1)
	if err != nil {
		return nil, err
	}
	second, err := r.store.GetVersion(ctx, taskID, v2)
	if err != nil {
		return nil, err
	}
	cmp := Compare(*first, *second)
	return &cmp, nil
}

func assignOptionIDs(opts []models.Option) {
	for i := range opts {
		if opts[i].ID == "" {
			opts[i].ID = uuid.NewString()
		}
	}
}
