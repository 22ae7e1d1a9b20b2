package models

import (
	"errors"
	"fmt"
	"slices"
)

// TaskType distinguishes how a task is answered and evaluated.
type TaskType string

const (
	TaskTypeMultipleChoice TaskType = "multiple_choice"
	TaskTypeFreeText       TaskType = "free_text"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TaskTypeMultipleChoice || t == TaskTypeFreeText
}

// ErrInvalidTask indicates a task violates its type's option invariant.
var ErrInvalidTask = errors.New("invalid task")

// Option is one answer option of a task.
// Free-text tasks carry their reference answer as a single correct option.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Task is a generated quiz question.
type Task struct {
	ID           string     `json:"id"`
	Type         TaskType   `json:"type"`
	Question     string     `json:"question"`
	Options      []Option   `json:"options"`
	UnitID       string     `json:"unit_id"`
	RepositoryID string     `json:"repository_id,omitempty"`
	DocumentID   string     `json:"document_id,omitempty"`
	ChunkID      string     `json:"chunk_id,omitempty"`
	CreatedAt    Timestamp  `json:"created_at"`
	UpdatedAt    Timestamp  `json:"updated_at"`
	DeletedAt    *Timestamp `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the task was soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil && !t.DeletedAt.IsZero()
}

// CorrectOption returns the option flagged correct. For free-text tasks this is
// the reference answer.
func (t *Task) CorrectOption() (Option, bool) {
	for _, o := range t.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return Option{}, false
}

// Option looks up an option by ID.
func (t *Task) Option(id string) (Option, bool) {
	for _, o := range t.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Validate checks the per-type option invariant.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	correct := 0
	seen := make(map[string]bool, len(t.Options))
	for _, o := range t.Options {
		if o.ID != "" {
			if seen[o.ID] {
				return fmt.Errorf("%w: task %s repeats option %s", ErrInvalidTask, t.ID, o.ID)
			}
			seen[o.ID] = true
		}
		if o.IsCorrect {
			correct++
		}
	}

	switch t.Type {
	case TaskTypeMultipleChoice:
		if len(t.Options) < 2 {
			return fmt.Errorf("%w: multiple choice task %s has %d options", ErrInvalidTask, t.ID, len(t.Options))
		}
		if correct != 1 {
			return fmt.Errorf("%w: multiple choice task %s has %d correct options", ErrInvalidTask, t.ID, correct)
		}
	case TaskTypeFreeText:
		if len(t.Options) != 1 || correct != 1 {
			return fmt.Errorf("%w: free text task %s must carry exactly one reference answer", ErrInvalidTask, t.ID)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTask, t.Type)
	}
	return nil
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	t.Options = slices.Clone(t.Options)
	if t.DeletedAt != nil {
		d := *t.DeletedAt
		t.DeletedAt = &d
	}
	return t
}

// IDs returns the identities of tasks in order.
func IDs(tasks []Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
