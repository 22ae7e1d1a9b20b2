package models

// Document is source material tasks are generated from.
type Document struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Path         string    `json:"path,omitempty"`
	Content      string    `json:"content"`
	RepositoryID string    `json:"repository_id,omitempty"`
	CreatedAt    Timestamp `json:"created_at"`
}
