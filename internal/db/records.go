package db

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// recordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

func versionID(taskID string, version int) string {
	return fmt.Sprintf("%s_v%d", taskID, version)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// setOpt adds key only for non-nil values. option<> fields reject NULL.
func setOpt(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

// =============================================================================
// TASK
// =============================================================================

type taskRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Type         string                 `json:"type"`
	Question     string                 `json:"question"`
	Options      []models.Option        `json:"options"`
	UnitID       string                 `json:"unit_id"`
	RepositoryID string                 `json:"repository_id"`
	DocumentID   string                 `json:"document_id"`
	ChunkID      string                 `json:"chunk_id"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	DeletedAt    *time.Time             `json:"deleted_at,omitempty"`
}

func (r taskRow) model() (models.Task, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Task{}, err
	}
	t := models.Task{
		ID:           id,
		Type:         models.TaskType(r.Type),
		Question:     r.Question,
		Options:      r.Options,
		UnitID:       r.UnitID,
		RepositoryID: r.RepositoryID,
		DocumentID:   r.DocumentID,
		ChunkID:      r.ChunkID,
		CreatedAt:    models.At(r.CreatedAt.UTC()),
		UpdatedAt:    models.At(r.UpdatedAt.UTC()),
	}
	if r.DeletedAt != nil && !r.DeletedAt.IsZero() {
		d := models.At(r.DeletedAt.UTC())
		t.DeletedAt = &d
	}
	return t, nil
}

func taskContent(t models.Task) map[string]any {
	m := map[string]any{
		"type":          string(t.Type),
		"question":      t.Question,
		"options":       optionContent(t.Options),
		"unit_id":       t.UnitID,
		"repository_id": t.RepositoryID,
		"document_id":   t.DocumentID,
		"chunk_id":      t.ChunkID,
		"created_at":    formatTime(t.CreatedAt.Time),
		"updated_at":    formatTime(t.UpdatedAt.Time),
	}
	if t.IsDeleted() {
		m["deleted_at"] = formatTime(t.DeletedAt.Time)
	}
	return m
}

func optionContent(opts []models.Option) []map[string]any {
	out := make([]map[string]any, len(opts))
	for i, o := range opts {
		out[i] = map[string]any{"id": o.ID, "text": o.Text, "is_correct": o.IsCorrect}
	}
	return out
}

// =============================================================================
// TASK VERSION
// =============================================================================

type versionRow struct {
	TaskID    string          `json:"task_id"`
	Version   int             `json:"version"`
	Type      string          `json:"type"`
	Question  string          `json:"question"`
	Options   []models.Option `json:"options"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy *string         `json:"created_by,omitempty"`
}

func (r versionRow) model() models.TaskVersion {
	return models.TaskVersion{
		TaskID:    r.TaskID,
		Version:   r.Version,
		Type:      models.TaskType(r.Type),
		Question:  r.Question,
		Options:   r.Options,
		CreatedAt: models.At(r.CreatedAt.UTC()),
		CreatedBy: r.CreatedBy,
	}
}

func versionContent(v models.TaskVersion) map[string]any {
	m := map[string]any{
		"task_id":    v.TaskID,
		"version":    v.Version,
		"type":       string(v.Type),
		"question":   v.Question,
		"options":    optionContent(v.Options),
		"created_at": formatTime(v.CreatedAt.Time),
	}
	setOpt(m, "created_by", v.CreatedBy)
	return m
}

// =============================================================================
// EVENTS
// =============================================================================

type changeRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	TaskID       string                 `json:"task_id"`
	RepositoryID string                 `json:"repository_id"`
	Kind         string                 `json:"kind"`
	Version      int                    `json:"version"`
	OldValue     *string                `json:"old_value,omitempty"`
	NewValue     *string                `json:"new_value,omitempty"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
	UserID       *string                `json:"user_id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Sequence     int64                  `json:"sequence"`
}

func (r changeRow) model() (models.ChangeEvent, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	return models.ChangeEvent{
		ID:           id,
		TaskID:       r.TaskID,
		RepositoryID: r.RepositoryID,
		Kind:         models.ChangeKind(r.Kind),
		Version:      r.Version,
		OldValue:     r.OldValue,
		NewValue:     r.NewValue,
		Metadata:     r.Metadata,
		UserID:       r.UserID,
		Timestamp:    models.At(r.Timestamp.UTC()),
		Sequence:     r.Sequence,
	}, nil
}

// recordInput is a record id with the content to create it with.
type recordInput struct {
	ID      string         `json:"id"`
	Content map[string]any `json:"content"`
}

func changeInputs(events []models.ChangeEvent) []recordInput {
	out := make([]recordInput, len(events))
	for i, ev := range events {
		m := map[string]any{
			"task_id":       ev.TaskID,
			"repository_id": ev.RepositoryID,
			"kind":          string(ev.Kind),
			"version":       ev.Version,
			"timestamp":     formatTime(ev.Timestamp.Time),
			"sequence":      ev.Sequence,
		}
		setOpt(m, "old_value", ev.OldValue)
		setOpt(m, "new_value", ev.NewValue)
		setOpt(m, "user_id", ev.UserID)
		if len(ev.Metadata) > 0 {
			m["metadata"] = ev.Metadata
		}
		out[i] = recordInput{ID: ev.ID, Content: m}
	}
	return out
}

type answerRow struct {
	ID             surrealmodels.RecordID `json:"id"`
	TaskID         string                 `json:"task_id"`
	RepositoryID   string                 `json:"repository_id"`
	TaskVersion    int                    `json:"task_version"`
	UserID         *string                `json:"user_id,omitempty"`
	Result         string                 `json:"result"`
	ChosenOptionID string                 `json:"chosen_option_id"`
	Answer         string                 `json:"answer"`
	Feedback       string                 `json:"feedback"`
	Timestamp      time.Time              `json:"timestamp"`
	Sequence       int64                  `json:"sequence"`
}

func (r answerRow) model() (models.AnswerEvent, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.AnswerEvent{}, err
	}
	return models.AnswerEvent{
		ID:             id,
		TaskID:         r.TaskID,
		RepositoryID:   r.RepositoryID,
		TaskVersion:    r.TaskVersion,
		UserID:         r.UserID,
		Result:         models.AnswerResult(r.Result),
		ChosenOptionID: r.ChosenOptionID,
		Answer:         r.Answer,
		Feedback:       r.Feedback,
		Timestamp:      models.At(r.Timestamp.UTC()),
		Sequence:       r.Sequence,
	}, nil
}

func answerContent(ev models.AnswerEvent) map[string]any {
	m := map[string]any{
		"task_id":          ev.TaskID,
		"repository_id":    ev.RepositoryID,
		"task_version":     ev.TaskVersion,
		"result":           string(ev.Result),
		"chosen_option_id": ev.ChosenOptionID,
		"answer":           ev.Answer,
		"feedback":         ev.Feedback,
		"timestamp":        formatTime(ev.Timestamp.Time),
		"sequence":         ev.Sequence,
	}
	setOpt(m, "user_id", ev.UserID)
	return m
}

type visitRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Page         string                 `json:"page"`
	UserID       *string                `json:"user_id,omitempty"`
	RepositoryID string                 `json:"repository_id"`
	TaskID       string                 `json:"task_id"`
	EnteredAt    time.Time              `json:"entered_at"`
	LeftAt       time.Time              `json:"left_at"`
}

func (r visitRow) model() (models.PageVisit, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.PageVisit{}, err
	}
	return models.PageVisit{
		ID:           id,
		Page:         r.Page,
		UserID:       r.UserID,
		RepositoryID: r.RepositoryID,
		TaskID:       r.TaskID,
		EnteredAt:    models.At(r.EnteredAt.UTC()),
		LeftAt:       models.At(r.LeftAt.UTC()),
	}, nil
}

func visitContent(v models.PageVisit) map[string]any {
	m := map[string]any{
		"page":          v.Page,
		"repository_id": v.RepositoryID,
		"task_id":       v.TaskID,
		"entered_at":    formatTime(v.EnteredAt.Time),
		"left_at":       formatTime(v.LeftAt.Time),
	}
	setOpt(m, "user_id", v.UserID)
	return m
}

// =============================================================================
// DOCUMENT
// =============================================================================

type documentRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Title        string                 `json:"title"`
	Path         string                 `json:"path"`
	Content      string                 `json:"content"`
	RepositoryID string                 `json:"repository_id"`
	CreatedAt    time.Time              `json:"created_at"`
}

func (r documentRow) model() (models.Document, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:           id,
		Title:        r.Title,
		Path:         r.Path,
		Content:      r.Content,
		RepositoryID: r.RepositoryID,
		CreatedAt:    models.At(r.CreatedAt.UTC()),
	}, nil
}

// convert maps rows to models, failing on the first bad row.
func convert[R any, M any](rows []R, fn func(R) (M, error)) ([]M, error) {
	out := make([]M, 0, len(rows))
	for _, r := range rows {
		m, err := fn(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
