package history

import (
	"context"
	"errors"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var (
	// ErrNotFound is returned when a task or version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDeleted is returned when editing or answering a soft-deleted task.
	ErrDeleted = errors.New("task deleted")
	// ErrAlreadyExists is returned when inserting a task or version twice.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvalidVisit is returned for a page visit that ends before it starts.
	ErrInvalidVisit = errors.New("invalid page visit")
)

// Store persists tasks and their append-only history. Each write method must
// apply all of its records or none.
type Store interface {
	// InsertTask stores a new task with its first version and creation event.
	InsertTask(ctx context.Context, task models.Task, version models.TaskVersion, events []models.ChangeEvent) error
	// CommitChange replaces the task state and appends the version (if any) and events.
	CommitChange(ctx context.Context, task models.Task, version *models.TaskVersion, events []models.ChangeEvent) error

	// GetTask returns a task, including soft-deleted ones.
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// ListTasksByUnit returns the active tasks of a unit, newest first.
	ListTasksByUnit(ctx context.Context, unitID string) ([]models.Task, error)

	// LatestVersion returns the highest version number of a task.
	LatestVersion(ctx context.Context, taskID string) (int, error)
	// ListVersions returns all versions of a task in ascending order.
	ListVersions(ctx context.Context, taskID string) ([]models.TaskVersion, error)
	// GetVersion returns one version of a task.
	GetVersion(ctx context.Context, taskID string, version int) (*models.TaskVersion, error)

	// ListChanges returns a task's change events, newest first. limit <= 0 means all.
	ListChanges(ctx context.Context, taskID string, limit int) ([]models.ChangeEvent, error)

	InsertAnswer(ctx context.Context, event models.AnswerEvent) error
	// ListAnswers returns a task's answer events, newest first. limit <= 0 means all.
	ListAnswers(ctx context.Context, taskID string, limit int) ([]models.AnswerEvent, error)

	InsertVisit(ctx context.Context, visit models.PageVisit) error

	// RepositoryEvents returns every event of a repository in chronological order.
	RepositoryEvents(ctx context.Context, repositoryID string) (*models.RepositoryEvents, error)
}
