package generation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/quizsync-go/internal/client"
	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Backend is the part of the backend API the dispatcher needs.
type Backend interface {
	UnitFetcher
	GenerateForUnit(ctx context.Context, req models.GenerateRequest) (*client.RawResponse, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
}

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelPending Level = "pending"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message about a job. A later notification
// for the same JobID replaces the earlier one.
type Notification struct {
	JobID   string
	UnitID  string
	Level   Level
	Message string
}

// Notifier receives notifications.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Path records how a job's result was obtained.
type Path string

const (
	PathSync    Path = "sync"
	PathWrapped Path = "wrapped"
	PathTaskIDs Path = "task_ids"
	PathRecheck Path = "recheck"
	PathPolled  Path = "polled"
)

// Update reports progress of a job for live displays.
type Update struct {
	JobID   string
	Phase   Phase
	Attempt int
	Found   int
	Next    time.Duration
	Err     error
}

// Result is the final state of a job.
type Result struct {
	JobID    string
	UnitID   string
	Phase    Phase
	Path     Path
	Tasks    []models.Task // confirmed new tasks
	Added    []models.Task // tasks that entered the collection
	Dropped  []string      // task ids that could not be loaded
	Attempts int
	Elapsed  time.Duration
	Err      error

	// UnitTaskCount is the unit's task count after the final refetch that
	// follows a timeout, or -1 when that refetch failed.
	UnitTaskCount int
}

// Handle is the caller's reference to a running job.
type Handle struct {
	job     *Job
	done    chan struct{}
	updates chan Update
	result  Result
	cancel  context.CancelFunc

	cancelled atomic.Bool
	detached  atomic.Bool
}

// Job returns the tracked job.
func (h *Handle) Job() *Job { return h.job }

// Done is closed once the job reached a terminal phase.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Updates delivers progress while the handle is attached. Closed when done.
func (h *Handle) Updates() <-chan Update { return h.updates }

// Result returns the final result. Only valid after Done is closed.
func (h *Handle) Result() Result { return h.result }

// Wait blocks until the job finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel stops the job. Pending waits are cleared, no further transitions
// happen and late responses are discarded without touching the collection.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	h.cancel()
}

// Detach silences notifications and updates. The job keeps running and its
// result still enters the collection.
func (h *Handle) Detach() {
	h.detached.Store(true)
}

func (h *Handle) alive() bool {
	return !h.cancelled.Load()
}

func (h *Handle) attached() bool {
	return h.alive() && !h.detached.Load()
}

// Dispatcher submits generation requests and drives them to a terminal phase.
type Dispatcher struct {
	backend    Backend
	collection *Collection
	registry   *Registry
	reconciler *Reconciler
	cfg        config.ReconcileConfig
	settings
}

// NewDispatcher creates a dispatcher that merges results into collection and
// tracks outstanding jobs in registry.
func NewDispatcher(backend Backend, collection *Collection, registry *Registry, cfg config.ReconcileConfig, opts ...Option) *Dispatcher {
	s := newSettings(opts)
	return &Dispatcher{
		backend:    backend,
		collection: collection,
		registry:   registry,
		reconciler: &Reconciler{fetcher: backend, cfg: cfg, settings: s},
		cfg:        cfg,
		settings:   s,
	}
}

// Dispatch validates req, registers a job and runs it in the background.
// The returned handle is the only way to observe or cancel the job.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.GenerateRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := newJob(req, d.collection.IDs(req.UnitID), d.clock.Now())
	jobCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		job:     job,
		done:    make(chan struct{}),
		updates: make(chan Update, 16),
		cancel:  cancel,
	}

	d.registry.add(job)
	job.setPhase(PhaseDispatched, d.clock.Now())
	d.notify(h, LevelPending, fmt.Sprintf("Generating %d %s task(s)...", req.NumTasks, req.TaskType))
	d.logger.Info("generation dispatched",
		"job_id", job.ID,
		"unit_id", req.UnitID,
		"documents", len(req.DocumentIDs),
		"num_tasks", req.NumTasks,
		"task_type", req.TaskType)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("generation goroutine panicked", "job_id", job.ID, "panic", r)
				h.result = d.finish(h, Result{Phase: PhaseFailed, Err: fmt.Errorf("internal panic: %v", r)})
			}
			d.registry.remove(job.ID)
			cancel()
			close(h.updates)
			close(h.done)
		}()
		h.result = d.run(jobCtx, h)
	}()

	return h, nil
}

func (d *Dispatcher) run(ctx context.Context, h *Handle) Result {
	resp, err := d.submit(ctx, h)
	if !h.alive() {
		return d.cancelled(h)
	}
	if err != nil {
		d.notify(h, LevelError, fmt.Sprintf("Task generation could not be started: %v", err))
		return d.finish(h, Result{Phase: PhaseFailed, Err: err})
	}

	switch c := Classify(resp.StatusCode, resp.Body).(type) {
	case TaskList:
		return d.resolve(h, Result{Path: PathSync}, c.Tasks)
	case WrappedTasks:
		return d.resolve(h, Result{Path: PathWrapped}, c.Tasks)
	case TaskIDList:
		return d.resolveIDs(ctx, h, c.IDs)
	case EmptyList:
		if fresh, ok := d.recheck(ctx, h); ok {
			return d.resolve(h, Result{Path: PathRecheck}, fresh)
		}
	case AsyncJob:
		if c.Unrecognized {
			d.logger.Warn("unrecognized generation response, polling for results",
				"job_id", h.job.ID, "status", resp.StatusCode, "body", truncate(string(resp.Body), 200))
		} else {
			d.logger.Info("generation queued", "job_id", h.job.ID, "backend_job_id", c.JobID, "status", c.Status)
		}
	}

	if !h.alive() {
		return d.cancelled(h)
	}
	return d.poll(ctx, h)
}

// submit sends the request, retrying transient failures with linear backoff.
func (d *Dispatcher) submit(ctx context.Context, h *Handle) (*client.RawResponse, error) {
	var resp *client.RawResponse
	operation := func() error {
		r, err := d.backend.GenerateForUnit(ctx, h.job.Request)
		if err != nil {
			if errors.Is(err, client.ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{Step: d.cfg.SubmitStep}, uint64(max(d.cfg.SubmitRetries, 0))),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		d.logger.Warn("generation request failed, retrying", "job_id", h.job.ID, "retry_in", next, "error", err)
	}
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, d.clock.NewTimer()); err != nil {
		return nil, err
	}
	return resp, nil
}

// resolveIDs loads each task individually. Failed loads are dropped and logged.
func (d *Dispatcher) resolveIDs(ctx context.Context, h *Handle, ids []string) Result {
	var (
		tasks   []models.Task
		dropped []string
	)
	for _, id := range ids {
		task, err := d.backend.GetTask(ctx, id)
		if !h.alive() {
			return d.cancelled(h)
		}
		if err != nil {
			d.logger.Warn("dropping unresolved task", "job_id", h.job.ID, "task_id", id, "error", err)
			dropped = append(dropped, id)
			continue
		}
		tasks = append(tasks, *task)
	}

	return d.resolve(h, Result{Path: PathTaskIDs, Dropped: dropped}, tasks)
}

// recheck waits briefly after an empty response and looks once for fresh tasks.
func (d *Dispatcher) recheck(ctx context.Context, h *Handle) ([]models.Task, bool) {
	timer := d.clock.NewTimer()
	defer timer.Stop()
	timer.Start(d.cfg.EmptyRecheck)
	select {
	case <-ctx.Done():
		return nil, false
	case <-timer.C():
	}

	tasks, err := d.backend.TasksByUnit(ctx, h.job.Request.UnitID)
	if err != nil {
		d.logger.Debug("recheck after empty response failed", "job_id", h.job.ID, "error", err)
		return nil, false
	}
	fresh := FreshTasks(tasks, h.job.InitialIDs, h.job.StartedAt)
	return fresh, len(fresh) > 0
}

func (d *Dispatcher) poll(ctx context.Context, h *Handle) Result {
	h.job.setPhase(PhasePolling, d.clock.Now())
	d.update(h, Update{Phase: PhasePolling})

	target := PollTarget{
		UnitID:     h.job.Request.UnitID,
		InitialIDs: h.job.InitialIDs,
		StartedAt:  h.job.StartedAt,
	}
	out := d.reconciler.Poll(ctx, target, func(attempt, found int, err error, next time.Duration) {
		h.job.recordAttempt(attempt, found)
		d.update(h, Update{Phase: PhasePolling, Attempt: attempt, Found: found, Next: next, Err: err})
	})

	switch {
	case !h.alive() || out.Phase == PhaseCancelled:
		return d.cancelled(h)
	case out.Phase == PhaseResolved:
		return d.resolve(h, Result{Path: PathPolled, Attempts: out.Attempts}, out.Tasks)
	}
	return d.timedOut(ctx, h, out)
}

// timedOut refetches the unit once and reports what is there. A timeout is
// not a failure: generation may have finished without being confirmed.
func (d *Dispatcher) timedOut(ctx context.Context, h *Handle, out PollOutcome) Result {
	unitID := h.job.Request.UnitID
	res := Result{Phase: PhaseTimedOut, Path: PathPolled, Attempts: out.Attempts, UnitTaskCount: -1}

	tasks, err := d.backend.TasksByUnit(ctx, unitID)
	if !h.alive() {
		return d.cancelled(h)
	}
	if err != nil {
		d.logger.Warn("final refetch failed", "job_id", h.job.ID, "unit_id", unitID, "error", err)
		d.notify(h, LevelWarning, "No new tasks confirmed yet. Refresh the unit later to check again.")
		return d.finish(h, res)
	}

	tasks = Normalize(unitID, tasks)
	res.Tasks = FreshTasks(tasks, h.job.InitialIDs, h.job.StartedAt)
	res.Added = d.collection.Merge(unitID, tasks)
	res.UnitTaskCount = len(tasks)

	if len(res.Tasks) > 0 {
		d.notify(h, LevelSuccess, fmt.Sprintf("%d new task(s) generated.", len(res.Tasks)))
	} else {
		d.notify(h, LevelWarning, fmt.Sprintf("No new tasks confirmed yet. The unit currently has %d task(s).", len(tasks)))
	}
	return d.finish(h, res)
}

// resolve merges confirmed tasks into the collection.
func (d *Dispatcher) resolve(h *Handle, res Result, tasks []models.Task) Result {
	if !h.alive() {
		return d.cancelled(h)
	}
	unitID := h.job.Request.UnitID
	tasks = Normalize(unitID, tasks)

	res.Phase = PhaseResolved
	res.Tasks = tasks
	res.UnitTaskCount = -1
	res.Added = d.collection.Merge(unitID, tasks)

	if len(tasks) == 0 {
		d.notify(h, LevelWarning, "No new tasks confirmed yet. Refresh the unit later to check again.")
	} else {
		d.notify(h, LevelSuccess, fmt.Sprintf("%d new task(s) generated.", len(tasks)))
	}
	return d.finish(h, res)
}

func (d *Dispatcher) cancelled(h *Handle) Result {
	d.logger.Info("generation cancelled", "job_id", h.job.ID)
	return d.finish(h, Result{Phase: PhaseCancelled, UnitTaskCount: -1})
}

func (d *Dispatcher) finish(h *Handle, res Result) Result {
	now := d.clock.Now()
	res.JobID = h.job.ID
	res.UnitID = h.job.Request.UnitID
	res.Elapsed = now.Sub(h.job.StartedAt)

	h.job.setPhase(res.Phase, now)
	h.job.recordAttempt(res.Attempts, len(res.Tasks))
	d.update(h, Update{Phase: res.Phase, Attempt: res.Attempts, Found: len(res.Tasks), Err: res.Err})

	d.logger.Info("generation finished",
		"job_id", res.JobID,
		"phase", res.Phase,
		"path", res.Path,
		"tasks", len(res.Tasks),
		"added", len(res.Added),
		"dropped", len(res.Dropped),
		"elapsed", res.Elapsed)
	return res
}

func (d *Dispatcher) notify(h *Handle, level Level, msg string) {
	if d.notifier == nil || !h.attached() {
		return
	}
	d.notifier.Notify(Notification{JobID: h.job.ID, UnitID: h.job.Request.UnitID, Level: level, Message: msg})
}

// update delivers progress without ever blocking the job.
func (d *Dispatcher) update(h *Handle, u Update) {
	if !h.attached() {
		return
	}
	u.JobID = h.job.ID
	select {
	case h.updates <- u:
	default:
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
