package models

import "time"

// TaskVersion is an immutable snapshot of a task, numbered from 1 per task.
// Listings may omit Options; comparisons always carry them.
type TaskVersion struct {
	TaskID    string    `json:"task_id"`
	Version   int       `json:"version"`
	Type      TaskType  `json:"type"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
	CreatedBy *string   `json:"created_by,omitempty"`
}

// Snapshot captures the versioned fields of t.
func Snapshot(t Task, version int, at time.Time, user *string) TaskVersion {
	c := t.Clone()
	return TaskVersion{
		TaskID:    t.ID,
		Version:   version,
		Type:      c.Type,
		Question:  c.Question,
		Options:   c.Options,
		CreatedAt: At(at),
		CreatedBy: user,
	}
}

// ChangeKind classifies a single task mutation.
type ChangeKind string

const (
	ChangeTaskCreated        ChangeKind = "task_created"
	ChangeQuestionUpdated    ChangeKind = "question_updated"
	ChangeOptionAdded        ChangeKind = "option_added"
	ChangeOptionUpdated      ChangeKind = "option_updated"
	ChangeOptionDeleted      ChangeKind = "option_deleted"
	ChangeCorrectnessChanged ChangeKind = "correctness_changed"
	ChangeTaskDeleted        ChangeKind = "task_deleted"
)

// IsEdit reports whether k describes an edit to an existing task.
func (k ChangeKind) IsEdit() bool {
	switch k {
	case ChangeQuestionUpdated, ChangeOptionAdded, ChangeOptionUpdated, ChangeOptionDeleted, ChangeCorrectnessChanged:
		return true
	}
	return false
}

// ChangeEvent records one discrete mutation. Events order by Timestamp, then Sequence.
type ChangeEvent struct {
	ID           string            `json:"id"`
	TaskID       string            `json:"task_id"`
	RepositoryID string            `json:"repository_id,omitempty"`
	Kind         ChangeKind        `json:"kind"`
	Version      int               `json:"version"`
	OldValue     *string           `json:"old_value,omitempty"`
	NewValue     *string           `json:"new_value,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UserID       *string           `json:"user_id,omitempty"`
	Timestamp    Timestamp         `json:"timestamp"`
	Sequence     int64             `json:"sequence"`
}

// AnswerResult is the evaluated outcome of one attempt.
type AnswerResult string

const (
	ResultCorrect       AnswerResult = "correct"
	ResultIncorrect     AnswerResult = "incorrect"
	ResultPartial       AnswerResult = "partial"
	ResultContradictory AnswerResult = "contradictory"
	ResultIrrelevant    AnswerResult = "irrelevant"
)

// AnswerEvent records one evaluated attempt by one user against one task version.
type AnswerEvent struct {
	ID             string       `json:"id"`
	TaskID         string       `json:"task_id"`
	RepositoryID   string       `json:"repository_id,omitempty"`
	TaskVersion    int          `json:"task_version"`
	UserID         *string      `json:"user_id,omitempty"`
	Result         AnswerResult `json:"result"`
	ChosenOptionID string       `json:"chosen_option_id,omitempty"`
	Answer         string       `json:"answer,omitempty"`
	Feedback       string       `json:"feedback,omitempty"`
	Timestamp      Timestamp    `json:"timestamp"`
	Sequence       int64        `json:"sequence"`
}

// PageVisit records time spent on one page.
type PageVisit struct {
	ID           string    `json:"id"`
	Page         string    `json:"page"`
	UserID       *string   `json:"user_id,omitempty"`
	RepositoryID string    `json:"repository_id,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	EnteredAt    Timestamp `json:"entered_at"`
	LeftAt       Timestamp `json:"left_at"`
}

// Duration returns the time spent on the page, never negative.
func (v PageVisit) Duration() time.Duration {
	d := v.LeftAt.Sub(v.EnteredAt.Time)
	if d < 0 {
		return 0
	}
	return d
}

// Difference is one field-level change between two versions.
type Difference struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Comparison is the result of comparing two versions of a task.
type Comparison struct {
	TaskID      string       `json:"task_id"`
	Version1    TaskVersion  `json:"version1_snapshot"`
	Version2    TaskVersion  `json:"version2_snapshot"`
	Differences []Difference `json:"differences"`
}

// RepositoryEvents is the raw event log of a repository.
type RepositoryEvents struct {
	RepositoryID string        `json:"repository_id"`
	Changes      []ChangeEvent `json:"change_events"`
	Answers      []AnswerEvent `json:"answer_events"`
	Visits       []PageVisit   `json:"page_visits"`
}
