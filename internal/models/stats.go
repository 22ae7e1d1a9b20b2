package models

// LifecycleCounts counts task lifecycle transitions.
// Modified counts distinct tasks with at least one edit; Edits counts edit events.
type LifecycleCounts struct {
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
	Active   int `json:"active"`
	Edits    int `json:"edits"`
}

// AnswerStats counts answer events per result bucket.
type AnswerStats struct {
	Total         int     `json:"total"`
	Correct       int     `json:"correct"`
	Incorrect     int     `json:"incorrect"`
	Partial       int     `json:"partial"`
	Contradictory int     `json:"contradictory"`
	Irrelevant    int     `json:"irrelevant"`
	SuccessRate   float64 `json:"success_rate"`
}

// PageTimeStats summarizes time spent on one page.
type PageTimeStats struct {
	Page    string  `json:"page"`
	Visits  int     `json:"visits"`
	TotalMs int64   `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MinMs   int64   `json:"min_ms"`
	MaxMs   int64   `json:"max_ms"`
}

// TaskStatistics aggregates the history of a single task.
type TaskStatistics struct {
	TaskID   string      `json:"task_id"`
	Versions int         `json:"versions"`
	Edits    int         `json:"edits"`
	Deleted  bool        `json:"deleted"`
	Answers  AnswerStats `json:"answers"`
}

// RepositoryStatistics aggregates all task history of a repository.
type RepositoryStatistics struct {
	RepositoryID    string          `json:"repository_id"`
	Lifecycle       LifecycleCounts `json:"lifecycle"`
	Answers         AnswerStats     `json:"answers"`
	PercentModified float64         `json:"percent_modified"`
	PercentDeleted  float64         `json:"percent_deleted"`
	Pages           []PageTimeStats `json:"pages"`
}
