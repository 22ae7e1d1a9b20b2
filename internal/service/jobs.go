// Package service provides the reference backend's business logic: task
// generation jobs, task editing and evaluation, and analytics.
package service

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// JobStatus represents the state of a background generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents a background generation job.
type Job struct {
	ID          string
	Request     models.GenerateRequest
	Status      JobStatus
	Progress    int
	Total       int
	TaskIDs     []string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu   sync.RWMutex
	done chan struct{}
}

// Done is closed when the job completes or fails.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// JobManager tracks generation jobs in memory.
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewJobManager creates a new job manager.
func NewJobManager(logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		jobs:   make(map[string]*Job),
		logger: logger,
		now:    time.Now,
	}
}

// CreateJob registers a new pending job.
func (m *JobManager) CreateJob(req models.GenerateRequest) *Job {
	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Request:   req,
		Status:    JobStatusPending,
		Total:     req.NumTasks,
		StartedAt: m.now(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", job.ID, "unit_id", req.UnitID, "num_tasks", req.NumTasks, "type", req.TaskType)
	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns snapshots of all jobs, most recent first.
func (m *JobManager) ListJobs() []JobView {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	views := make([]JobView, len(jobs))
	for i, job := range jobs {
		views[i] = job.Snapshot()
	}
	slices.SortFunc(views, func(a, b JobView) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return views
}

// SetRunning marks job as running.
func (m *JobManager) SetRunning(job *Job) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
}

// AddTasks records created tasks and advances progress.
func (m *JobManager) AddTasks(job *Job, ids ...string) {
	job.mu.Lock()
	job.TaskIDs = append(job.TaskIDs, ids...)
	job.Progress = len(job.TaskIDs)
	job.mu.Unlock()
}

// Complete marks job as completed.
func (m *JobManager) Complete(job *Job) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	now := m.now()
	job.CompletedAt = &now
	created := len(job.TaskIDs)
	job.mu.Unlock()
	close(job.done)

	m.logger.Info("job completed", "job_id", job.ID, "tasks", created, "duration_ms", now.Sub(job.StartedAt).Milliseconds())
}

// Fail marks job as failed with error. Tasks created before the failure are kept.
func (m *JobManager) Fail(job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := m.now()
	job.CompletedAt = &now
	job.mu.Unlock()
	close(job.done)

	m.logger.Error("job failed", "job_id", job.ID, "error", err)
}

// JobView is a point-in-time copy of a job.
type JobView struct {
	ID          string                 `json:"id"`
	Request     models.GenerateRequest `json:"request"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress"`
	Total       int                    `json:"total"`
	TaskIDs     []string               `json:"task_ids"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		Request:     j.Request,
		Status:      j.Status,
		Progress:    j.Progress,
		Total:       j.Total,
		TaskIDs:     slices.Clone(j.TaskIDs),
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
