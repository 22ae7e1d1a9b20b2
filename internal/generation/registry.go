package generation

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Job tracks one outstanding generation request.
type Job struct {
	ID         string
	Request    models.GenerateRequest
	InitialIDs map[string]struct{}
	StartedAt  time.Time

	mu          sync.RWMutex
	phase       Phase
	attempts    int
	found       int
	completedAt *time.Time
}

// JobView is a point-in-time copy of a job's state.
type JobView struct {
	ID          string
	UnitID      string
	NumTasks    int
	TaskType    models.TaskType
	Phase       Phase
	Attempts    int
	Found       int
	StartedAt   time.Time
	CompletedAt *time.Time
}

func newJob(req models.GenerateRequest, initial map[string]struct{}, now time.Time) *Job {
	return &Job{
		ID:         uuid.New().String()[:8],
		Request:    req,
		InitialIDs: initial,
		StartedAt:  now,
		phase:      PhaseIdle,
	}
}

func (j *Job) setPhase(p Phase, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phase = p
	if p.Terminal() {
		j.completedAt = &now
	}
}

func (j *Job) recordAttempt(attempt, found int) {
	j.mu.Lock()
	j.attempts = attempt
	j.found = found
	j.mu.Unlock()
}

// Phase returns the current phase.
func (j *Job) Phase() Phase {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.phase
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		UnitID:      j.Request.UnitID,
		NumTasks:    j.Request.NumTasks,
		TaskType:    j.Request.TaskType,
		Phase:       j.phase,
		Attempts:    j.attempts,
		Found:       j.found,
		StartedAt:   j.StartedAt,
		CompletedAt: j.completedAt,
	}
}

// Registry holds the outstanding generation jobs.
// Only the Dispatcher adds and removes jobs.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func (r *Registry) add(j *Job) {
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Get retrieves a job by ID.
func (r *Registry) Get(id string) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

// List returns snapshots of all outstanding jobs, most recent first.
func (r *Registry) List() []JobView {
	r.mu.RLock()
	views := make([]JobView, 0, len(r.jobs))
	for _, j := range r.jobs {
		views = append(views, j.Snapshot())
	}
	r.mu.RUnlock()

	slices.SortFunc(views, func(a, b JobView) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return views
}

// Len returns the number of outstanding jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
