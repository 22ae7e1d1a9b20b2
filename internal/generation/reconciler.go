package generation

import (
	"context"
	"time"

	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Phase is the lifecycle state of a generation job.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDispatched Phase = "dispatched"
	PhasePolling    Phase = "polling"
	PhaseResolved   Phase = "resolved"
	PhaseTimedOut   Phase = "timed_out"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal reports whether no further transitions follow p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseResolved, PhaseTimedOut, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// UnitFetcher lists the current tasks of a unit.
type UnitFetcher interface {
	TasksByUnit(ctx context.Context, unitID string) ([]models.Task, error)
}

// PollTarget describes what a reconciler is waiting for.
type PollTarget struct {
	UnitID     string
	InitialIDs map[string]struct{}
	StartedAt  time.Time
}

// PollOutcome is the result of one reconciliation.
type PollOutcome struct {
	Phase    Phase
	Tasks    []models.Task
	Attempts int
	Failures int
	Elapsed  time.Duration
	LastErr  error
}

// AttemptFunc observes each poll attempt. next is the wait before the
// following attempt, zero when polling stops.
type AttemptFunc func(attempt int, found int, err error, next time.Duration)

// Reconciler polls a unit's task list until new tasks are confirmed or a
// ceiling on attempts or elapsed time is reached.
type Reconciler struct {
	fetcher UnitFetcher
	cfg     config.ReconcileConfig
	settings
}

// NewReconciler creates a reconciler polling through fetcher.
func NewReconciler(fetcher UnitFetcher, cfg config.ReconcileConfig, opts ...Option) *Reconciler {
	return &Reconciler{fetcher: fetcher, cfg: cfg, settings: newSettings(opts)}
}

func (r *Reconciler) backOff() *PollBackOff {
	return &PollBackOff{
		Base:      r.cfg.BaseDelay,
		Max:       r.cfg.MaxDelay,
		Factor:    r.cfg.Factor,
		MaxJitter: r.cfg.MaxJitter,
		Jitter:    r.jitter,
	}
}

// Poll waits, fetches and repeats until fresh tasks appear (PhaseResolved),
// the ceiling is hit (PhaseTimedOut) or ctx is cancelled (PhaseCancelled).
// Fetch errors count as failed attempts and never end polling early.
// A response arriving after cancellation is discarded.
func (r *Reconciler) Poll(ctx context.Context, target PollTarget, onAttempt AttemptFunc) PollOutcome {
	bo := r.backOff()
	timer := r.clock.NewTimer()
	defer timer.Stop()

	out := PollOutcome{Phase: PhasePolling}
	elapsed := func() time.Duration { return r.clock.Now().Sub(target.StartedAt) }

	for out.Attempts < r.cfg.MaxAttempts {
		wait := bo.NextBackOff()
		if remaining := r.cfg.MaxElapsed - elapsed(); wait > remaining {
			wait = max(remaining, 0)
		}

		timer.Start(wait)
		select {
		case <-ctx.Done():
			out.Phase = PhaseCancelled
			out.Elapsed = elapsed()
			return out
		case <-timer.C():
		}

		out.Attempts++
		tasks, err := r.fetcher.TasksByUnit(ctx, target.UnitID)
		if ctx.Err() != nil {
			out.Phase = PhaseCancelled
			out.Elapsed = elapsed()
			return out
		}

		var fresh []models.Task
		if err != nil {
			out.Failures++
			out.LastErr = err
			r.logger.Debug("poll fetch failed", "unit_id", target.UnitID, "attempt", out.Attempts, "error", err)
		} else {
			fresh = FreshTasks(tasks, target.InitialIDs, target.StartedAt)
		}

		if len(fresh) > 0 {
			if onAttempt != nil {
				onAttempt(out.Attempts, len(fresh), nil, 0)
			}
			out.Phase = PhaseResolved
			out.Tasks = fresh
			out.Elapsed = elapsed()
			r.logger.Info("generation confirmed", "unit_id", target.UnitID, "attempts", out.Attempts, "tasks", len(fresh))
			return out
		}

		done := out.Attempts >= r.cfg.MaxAttempts || elapsed() >= r.cfg.MaxElapsed
		if onAttempt != nil {
			var next time.Duration
			if !done {
				next = bo.Delay(out.Attempts)
			}
			onAttempt(out.Attempts, 0, err, next)
		}
		if done {
			break
		}
	}

	out.Phase = PhaseTimedOut
	out.Elapsed = elapsed()
	r.logger.Warn("generation not confirmed before ceiling",
		"unit_id", target.UnitID,
		"attempts", out.Attempts,
		"failures", out.Failures,
		"elapsed", out.Elapsed)
	return out
}
