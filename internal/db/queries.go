package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var _ history.Store = (*Client)(nil)

// errTaskMissing is thrown inside transactions and mapped onto ErrNotFound.
const errTaskMissing = "task does not exist"

func notFoundIfThrown(err error, taskID string) error {
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) && strings.Contains(queryErr.Message, errTaskMissing) {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return err
}

// =============================================================================
// TASK WRITES
// =============================================================================

// InsertTask creates a task with its first version and creation events in one transaction.
func (c *Client) InsertTask(ctx context.Context, task models.Task, version models.TaskVersion, events []models.ChangeEvent) error {
	sql := `
		BEGIN TRANSACTION;
		CREATE type::record("task", $task_id) CONTENT $task;
		CREATE type::record("task_version", $version_id) CONTENT $version;
		FOR $ev IN $events {
			CREATE type::record("change_event", $ev.id) CONTENT $ev.content;
		};
		COMMIT TRANSACTION;
	`
	_, err := query[any](ctx, c, sql, map[string]any{
		"task_id":    task.ID,
		"task":       taskContent(task),
		"version_id": versionID(task.ID, version.Version),
		"version":    versionContent(version),
		"events":     changeInputs(events),
	})
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// CommitChange replaces the task state and appends an optional version plus
// events in one transaction. A duplicate version fails with ErrAlreadyExists.
func (c *Client) CommitChange(ctx context.Context, task models.Task, version *models.TaskVersion, events []models.ChangeEvent) error {
	versionClause := ""
	vars := map[string]any{
		"task_id": task.ID,
		"task":    taskContent(task),
		"events":  changeInputs(events),
		"missing": errTaskMissing,
	}
	if version != nil {
		versionClause = `CREATE type::record("task_version", $version_id) CONTENT $version;`
		vars["version_id"] = versionID(task.ID, version.Version)
		vars["version"] = versionContent(*version)
	}

	sql := fmt.Sprintf(`
		BEGIN TRANSACTION;
		IF !record::exists(type::record("task", $task_id)) { THROW $missing };
		UPDATE type::record("task", $task_id) CONTENT $task;
		%s
		FOR $ev IN $events {
			CREATE type::record("change_event", $ev.id) CONTENT $ev.content;
		};
		COMMIT TRANSACTION;
	`, versionClause)

	if _, err := query[any](ctx, c, sql, vars); err != nil {
		return fmt.Errorf("commit change: %w", notFoundIfThrown(err, task.ID))
	}
	return nil
}

// =============================================================================
// TASK READS
// =============================================================================

// GetTask retrieves a task by ID, including soft-deleted tasks.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	results, err := query[[]taskRow](ctx, c, `
		SELECT * FROM type::record("task", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	rows := first(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	task, err := rows[0].model()
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// ListTasksByUnit returns the active tasks of a unit, newest first.
func (c *Client) ListTasksByUnit(ctx context.Context, unitID string) ([]models.Task, error) {
	results, err := query[[]taskRow](ctx, c, `
		SELECT * FROM task
		WHERE unit_id = $unit_id AND deleted_at IS NONE
		ORDER BY created_at DESC
	`, map[string]any{"unit_id": unitID})
	if err != nil {
		return nil, fmt.Errorf("list tasks by unit: %w", err)
	}
	return convert(first(results), taskRow.model)
}

// =============================================================================
// VERSIONS
// =============================================================================

// LatestVersion returns the highest version number of a task.
func (c *Client) LatestVersion(ctx context.Context, taskID string) (int, error) {
	results, err := query[[]int](ctx, c, `
		SELECT VALUE version FROM task_version
		WHERE task_id = $task_id
		ORDER BY version DESC LIMIT 1
	`, map[string]any{"task_id": taskID})
	if err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}

	rows := first(results)
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return rows[0], nil
}

// ListVersions returns all versions of a task in ascending order.
func (c *Client) ListVersions(ctx context.Context, taskID string) ([]models.TaskVersion, error) {
	if _, err := c.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	results, err := query[[]versionRow](ctx, c, `
		SELECT * FROM task_version WHERE task_id = $task_id ORDER BY version ASC
	`, map[string]any{"task_id": taskID})
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	rows := first(results)
	versions := make([]models.TaskVersion, len(rows))
	for i, r := range rows {
		versions[i] = r.model()
	}
	return versions, nil
}

// GetVersion returns one version of a task.
func (c *Client) GetVersion(ctx context.Context, taskID string, version int) (*models.TaskVersion, error) {
	results, err := query[[]versionRow](ctx, c, `
		SELECT * FROM type::record("task_version", $id)
	`, map[string]any{"id": versionID(taskID, version)})
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}

	rows := first(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: version %d of task %s", ErrNotFound, version, taskID)
	}
	v := rows[0].model()
	return &v, nil
}

// =============================================================================
// EVENTS
// =============================================================================

func limitClause(limit int, vars map[string]any) string {
	if limit <= 0 {
		return ""
	}
	vars["limit"] = limit
	return "LIMIT $limit"
}

// ListChanges returns a task's change events, newest first.
func (c *Client) ListChanges(ctx context.Context, taskID string, limit int) ([]models.ChangeEvent, error) {
	vars := map[string]any{"task_id": taskID}
	sql := fmt.Sprintf(`
		SELECT * FROM change_event WHERE task_id = $task_id
		ORDER BY timestamp DESC, sequence DESC %s
	`, limitClause(limit, vars))

	results, err := query[[]changeRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return convert(first(results), changeRow.model)
}

// InsertAnswer appends an answer event.
func (c *Client) InsertAnswer(ctx context.Context, event models.AnswerEvent) error {
	_, err := query[any](ctx, c, `
		CREATE type::record("answer_event", $id) CONTENT $content
	`, map[string]any{"id": event.ID, "content": answerContent(event)})
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// ListAnswers returns a task's answer events, newest first.
func (c *Client) ListAnswers(ctx context.Context, taskID string, limit int) ([]models.AnswerEvent, error) {
	vars := map[string]any{"task_id": taskID}
	sql := fmt.Sprintf(`
		SELECT * FROM answer_event WHERE task_id = $task_id
		ORDER BY timestamp DESC, sequence DESC %s
	`, limitClause(limit, vars))

	results, err := query[[]answerRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return convert(first(results), answerRow.model)
}

// InsertVisit appends a page visit.
func (c *Client) InsertVisit(ctx context.Context, visit models.PageVisit) error {
	_, err := query[any](ctx, c, `
		CREATE type::record("page_visit", $id) CONTENT $content
	`, map[string]any{"id": visit.ID, "content": visitContent(visit)})
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// RepositoryEvents returns every event of a repository in chronological order.
func (c *Client) RepositoryEvents(ctx context.Context, repositoryID string) (*models.RepositoryEvents, error) {
	vars := map[string]any{"repository_id": repositoryID}

	changeResults, err := query[[]changeRow](ctx, c, `
		SELECT * FROM change_event WHERE repository_id = $repository_id
		ORDER BY timestamp ASC, sequence ASC
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("repository changes: %w", err)
	}
	answerResults, err := query[[]answerRow](ctx, c, `
		SELECT * FROM answer_event WHERE repository_id = $repository_id
		ORDER BY timestamp ASC, sequence ASC
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("repository answers: %w", err)
	}
	visitResults, err := query[[]visitRow](ctx, c, `
		SELECT * FROM page_visit WHERE repository_id = $repository_id
		ORDER BY entered_at ASC
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("repository visits: %w", err)
	}

	out := &models.RepositoryEvents{RepositoryID: repositoryID}
	if out.Changes, err = convert(first(changeResults), changeRow.model); err != nil {
		return nil, err
	}
	if out.Answers, err = convert(first(answerResults), answerRow.model); err != nil {
		return nil, err
	}
	if out.Visits, err = convert(first(visitResults), visitRow.model); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// UpsertDocument creates or replaces a source document.
func (c *Client) UpsertDocument(ctx context.Context, doc models.Document) error {
	_, err := query[any](ctx, c, `
		UPSERT type::record("document", $id) SET
			title = $title,
			path = $path,
			content = $content,
			repository_id = $repository_id
	`, map[string]any{
		"id":            doc.ID,
		"title":         doc.Title,
		"path":          doc.Path,
		"content":       doc.Content,
		"repository_id": doc.RepositoryID,
	})
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a source document by ID.
func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	results, err := query[[]documentRow](ctx, c, `
		SELECT * FROM type::record("document", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	rows := first(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	doc, err := rows[0].model()
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns all source documents ordered by title.
func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	results, err := query[[]documentRow](ctx, c, `SELECT * FROM document ORDER BY title ASC`, nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return convert(first(results), documentRow.model)
}
