package history

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// MemoryStore is an in-process Store. It backs tests and the server's
// --memory mode.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]models.Task
	versions map[string][]models.TaskVersion
	changes  []models.ChangeEvent
	answers  []models.AnswerEvent
	visits   []models.PageVisit
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]models.Task),
		versions: make(map[string][]models.TaskVersion),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) InsertTask(_ context.Context, task models.Task, version models.TaskVersion, events []models.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	s.versions[task.ID] = []models.TaskVersion{version}
	s.changes = append(s.changes, events...)
	return nil
}

func (s *MemoryStore) CommitChange(_ context.Context, task models.Task, version *models.TaskVersion, events []models.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, task.ID)
	}
	if version != nil {
		vs := s.versions[task.ID]
		if n := len(vs); n > 0 && vs[n-1].Version >= version.Version {
			return fmt.Errorf("%w: version %d of task %s", ErrAlreadyExists, version.Version, task.ID)
		}
		s.versions[task.ID] = append(vs, *version)
	}
	s.tasks[task.ID] = task.Clone()
	s.changes = append(s.changes, events...)
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	c := t.Clone()
	return &c, nil
}

func (s *MemoryStore) ListTasksByUnit(_ context.Context, unitID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, t := range s.tasks {
		if t.UnitID == unitID && !t.IsDeleted() {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) LatestVersion(_ context.Context, taskID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[taskID]
	if len(vs) == 0 {
		return 0, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return vs[len(vs)-1].Version, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, taskID string) ([]models.TaskVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tasks[taskID]; !ok {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return slices.Clone(s.versions[taskID]), nil
}

func (s *MemoryStore) GetVersion(_ context.Context, taskID string, version int) (*models.TaskVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[taskID] {
		if v.Version == version {
			v.Options = slices.Clone(v.Options)
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%w: version %d of task %s", ErrNotFound, version, taskID)
}

func (s *MemoryStore) ListChanges(_ context.Context, taskID string, limit int) ([]models.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ChangeEvent
	for _, ev := range s.changes {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b models.ChangeEvent) int { return compareEvents(b.Timestamp, b.Sequence, a.Timestamp, a.Sequence) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) InsertAnswer(_ context.Context, event models.AnswerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, event)
	return nil
}

func (s *MemoryStore) ListAnswers(_ context.Context, taskID string, limit int) ([]models.AnswerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AnswerEvent
	for _, ev := range s.answers {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b models.AnswerEvent) int { return compareEvents(b.Timestamp, b.Sequence, a.Timestamp, a.Sequence) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) InsertVisit(_ context.Context, visit models.PageVisit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, visit)
	return nil
}

func (s *MemoryStore) RepositoryEvents(_ context.Context, repositoryID string) (*models.RepositoryEvents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &models.RepositoryEvents{
		RepositoryID: repositoryID,
		Changes:      []models.ChangeEvent{},
		Answers:      []models.AnswerEvent{},
		Visits:       []models.PageVisit{},
	}
	for _, ev := range s.changes {
		if ev.RepositoryID == repositoryID {
			out.Changes = append(out.Changes, ev)
		}
	}
	for _, ev := range s.answers {
		if ev.RepositoryID == repositoryID {
			out.Answers = append(out.Answers, ev)
		}
	}
	for _, v := range s.visits {
		if v.RepositoryID == repositoryID {
			out.Visits = append(out.Visits, v)
		}
	}
	slices.SortFunc(out.Changes, func(a, b models.ChangeEvent) int { return compareEvents(a.Timestamp, a.Sequence, b.Timestamp, b.Sequence) })
	slices.SortFunc(out.Answers, func(a, b models.AnswerEvent) int { return compareEvents(a.Timestamp, a.Sequence, b.Timestamp, b.Sequence) })
	slices.SortFunc(out.Visits, func(a, b models.PageVisit) int { return a.EnteredAt.Compare(b.EnteredAt.Time) })
	return out, nil
}

// compareEvents orders by timestamp, then sequence.
func compareEvents(at models.Timestamp, aseq int64, bt models.Timestamp, bseq int64) int {
	if c := at.Compare(bt.Time); c != 0 {
		return c
	}
	return cmp.Compare(aseq, bseq)
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
