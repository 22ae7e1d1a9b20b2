package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/llm"
	"github.com/raphaelgruber/quizsync-go/internal/models"
	"github.com/raphaelgruber/quizsync-go/internal/parser"
)

// TaskGenerator drafts tasks from a source chunk. *llm.Generator implements it.
type TaskGenerator interface {
	Generate(ctx context.Context, chunk parser.Chunk, n int, taskType models.TaskType) ([]models.Task, error)
}

var _ TaskGenerator = (*llm.Generator)(nil)

// GenerationService runs generation jobs in the background on a bounded
// worker pool.
type GenerationService struct {
	docs      DocumentStore
	recorder  *history.Recorder
	generator TaskGenerator
	jobs      *JobManager
	chunkCfg  parser.ChunkConfig
	logger    *slog.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGenerationService creates a service running at most workers jobs at once.
func NewGenerationService(docs DocumentStore, recorder *history.Recorder, generator TaskGenerator, jobs *JobManager, workers int, logger *slog.Logger) *GenerationService {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GenerationService{
		docs:      docs,
		recorder:  recorder,
		generator: generator,
		jobs:      jobs,
		chunkCfg:  parser.DefaultChunkConfig(),
		logger:    logger,
		sem:       make(chan struct{}, workers),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Jobs returns the job manager.
func (s *GenerationService) Jobs() *JobManager {
	return s.jobs
}

// Submit validates req and queues a job. It returns as soon as the job is queued.
func (s *GenerationService) Submit(ctx context.Context, req models.GenerateRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, id := range req.DocumentIDs {
		if _, err := s.docs.GetDocument(ctx, id); err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown document %s", models.ErrInvalidRequest, id)
			}
			return nil, fmt.Errorf("get document: %w", err)
		}
	}

	job := s.jobs.CreateJob(req)
	s.wg.Add(1)
	go s.run(job)
	return job, nil
}

// Close stops accepting work, cancels running jobs and waits for them.
func (s *GenerationService) Close(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GenerationService) run(job *Job) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
			s.jobs.Fail(job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.ctx.Done():
		s.jobs.Fail(job, s.ctx.Err())
		return
	}

	s.jobs.SetRunning(job)
	if err := s.process(s.ctx, job); err != nil {
		s.jobs.Fail(job, err)
		return
	}
	s.jobs.Complete(job)
}

// process generates the requested number of tasks, spreading them across
// chunks of all requested documents.
func (s *GenerationService) process(ctx context.Context, job *Job) error {
	req := job.Request

	docs := make(map[string]models.Document, len(req.DocumentIDs))
	var perDocument [][]parser.Chunk
	for _, id := range req.DocumentIDs {
		doc, err := s.docs.GetDocument(ctx, id)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		docs[doc.ID] = *doc
		if chunks := parser.DocumentChunks(*doc, s.chunkCfg); len(chunks) > 0 {
			perDocument = append(perDocument, chunks)
		}
	}

	selected := parser.Spread(perDocument, req.NumTasks)
	if len(selected) == 0 {
		return fmt.Errorf("requested documents have no content")
	}

	remaining := req.NumTasks
	var lastErr error
	for i, chunk := range selected {
		if remaining <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Split what is left evenly over the chunks still to come, rounding up.
		left := len(selected) - i
		n := (remaining + left - 1) / left

		drafts, err := s.generator.Generate(ctx, chunk, n, req.TaskType)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) {
				return err
			}
			s.logger.Warn("chunk generation failed", "job_id", job.ID, "chunk_id", chunk.ID, "error", err)
			lastErr = err
			continue
		}

		for _, draft := range drafts {
			draft.UnitID = req.UnitID
			draft.RepositoryID = docs[chunk.DocumentID].RepositoryID
			task, err := s.recorder.Create(ctx, draft, nil)
			if err != nil {
				s.logger.Warn("dropping generated task", "job_id", job.ID, "chunk_id", chunk.ID, "error", err)
				lastErr = err
				continue
			}
			s.jobs.AddTasks(job, task.ID)
			remaining--
		}
	}

	if len(job.Snapshot().TaskIDs) == 0 && lastErr != nil {
		return fmt.Errorf("no tasks generated: %w", lastErr)
	}
	return nil
}
