// Package cache archives finished generation jobs in a local SQLite database.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/raphaelgruber/quizsync-go/internal/generation"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// ErrNotFound is returned when no archived job has the requested ID.
var ErrNotFound = errors.New("job not found")

// JobRecord is an archived generation job.
type JobRecord struct {
	ID          string                 `json:"id"`
	UnitID      string                 `json:"unit_id"`
	Request     models.GenerateRequest `json:"request"`
	Phase       generation.Phase       `json:"phase"`
	Path        generation.Path        `json:"path,omitempty"`
	Attempts    int                    `json:"attempts"`
	TaskIDs     []string               `json:"task_ids"`
	Dropped     []string               `json:"dropped,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Duration returns how long the job ran.
func (r JobRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// FromResult builds a record from a finished job and its result.
func FromResult(job *generation.Job, res generation.Result) JobRecord {
	view := job.Snapshot()
	rec := JobRecord{
		ID:        res.JobID,
		UnitID:    res.UnitID,
		Request:   job.Request,
		Phase:     res.Phase,
		Path:      res.Path,
		Attempts:  res.Attempts,
		TaskIDs:   models.IDs(res.Tasks),
		Dropped:   res.Dropped,
		StartedAt: view.StartedAt,
	}
	if view.CompletedAt != nil {
		rec.CompletedAt = *view.CompletedAt
	} else {
		rec.CompletedAt = view.StartedAt.Add(res.Elapsed)
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Archive is a SQLite-backed store of finished jobs.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and ensures its tables exist.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	a := &Archive{db: db}
	if err := a.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			unit_id TEXT NOT NULL,
			request TEXT NOT NULL,
			phase TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			task_ids TEXT NOT NULL DEFAULT '[]',
			dropped TEXT NOT NULL DEFAULT '[]',
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_started ON jobs (started_at)`,
	}
	for _, q := range queries {
		if _, err := a.db.Exec(q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// Save stores or replaces a job record.
func (a *Archive) Save(ctx context.Context, rec JobRecord) error {
	request, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	taskIDs, err := json.Marshal(nonNil(rec.TaskIDs))
	if err != nil {
		return fmt.Errorf("marshal task ids: %w", err)
	}
	dropped, err := json.Marshal(nonNil(rec.Dropped))
	if err != nil {
		return fmt.Errorf("marshal dropped: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs
			(id, unit_id, request, phase, path, attempts, task_ids, dropped, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UnitID, string(request), string(rec.Phase), string(rec.Path), rec.Attempts,
		string(taskIDs), string(dropped), rec.Error, rec.StartedAt.UTC(), rec.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, unit_id, request, phase, path, attempts, task_ids, dropped, error, started_at, completed_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (JobRecord, error) {
	var (
		rec                       JobRecord
		request, taskIDs, dropped string
		phase, path               string
	)
	if err := s.Scan(&rec.ID, &rec.UnitID, &request, &phase, &path, &rec.Attempts,
		&taskIDs, &dropped, &rec.Error, &rec.StartedAt, &rec.CompletedAt); err != nil {
		return JobRecord{}, err
	}
	rec.Phase = generation.Phase(phase)
	rec.Path = generation.Path(path)
	if err := json.Unmarshal([]byte(request), &rec.Request); err != nil {
		return JobRecord{}, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := json.Unmarshal([]byte(taskIDs), &rec.TaskIDs); err != nil {
		return JobRecord{}, fmt.Errorf("unmarshal task ids: %w", err)
	}
	if err := json.Unmarshal([]byte(dropped), &rec.Dropped); err != nil {
		return JobRecord{}, fmt.Errorf("unmarshal dropped: %w", err)
	}
	return rec, nil
}

// Get retrieves a job by ID. A unique ID prefix is accepted.
func (a *Archive) Get(ctx context.Context, id string) (*JobRecord, error) {
	rows, err := a.db.QueryContext(ctx, selectColumns+` WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`, id, id+"%", id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	defer rows.Close()

	var found []JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case found[0].ID == id || len(found) == 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("job id prefix %q is ambiguous", id)
	}
}

// List returns archived jobs, most recent first. limit <= 0 means all.
func (a *Archive) List(ctx context.Context, limit int) ([]JobRecord, error) {
	q := selectColumns + ` ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes jobs that started before cutoff and returns how many were removed.
func (a *Archive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM jobs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
