package generation

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Merge prepends the tasks of incoming whose identity is not yet in existing.
// It is idempotent and never produces duplicate identities, even when either
// input repeats an identity. Neither input is modified.
func Merge(existing, incoming []models.Task) []models.Task {
	merged := make([]models.Task, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, cap(merged))
	add := func(t models.Task) {
		if _, dup := seen[t.ID]; dup {
			return
		}
		seen[t.ID] = struct{}{}
		merged = append(merged, t)
	}

	for _, t := range novel(existing, incoming) {
		add(t)
	}
	for _, t := range existing {
		add(t)
	}
	return merged
}

// novel returns the tasks of incoming whose identity is not in existing.
func novel(existing, incoming []models.Task) []models.Task {
	known := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		known[t.ID] = struct{}{}
	}
	var out []models.Task
	for _, t := range incoming {
		if _, ok := known[t.ID]; ok {
			continue
		}
		known[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Normalize drops tasks without an identity, fills in the unit and guarantees a
// non-nil option slice.
func Normalize(unitID string, tasks []models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			continue
		}
		if t.UnitID == "" {
			t.UnitID = unitID
		}
		if t.Options == nil {
			t.Options = []models.Option{}
		}
		out = append(out, t)
	}
	return out
}

// FreshTasks returns the tasks absent from initial and created at or after startedAt.
// Identity alone is not enough: a cached list can briefly return old tasks.
func FreshTasks(tasks []models.Task, initial map[string]struct{}, startedAt time.Time) []models.Task {
	var fresh []models.Task
	for _, t := range tasks {
		if _, known := initial[t.ID]; known {
			continue
		}
		if t.CreatedAt.Before(startedAt) {
			continue
		}
		fresh = append(fresh, t)
	}
	return fresh
}

// Collection is the client's view of tasks per unit.
// All writes go through Merge.
type Collection struct {
	mu    sync.RWMutex
	units map[string][]models.Task
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{units: make(map[string][]models.Task)}
}

// Merge merges incoming into the unit's tasks and returns the tasks that were added.
func (c *Collection) Merge(unitID string, incoming []models.Task) []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := novel(c.units[unitID], incoming)
	c.units[unitID] = Merge(c.units[unitID], added)
	return added
}

// Tasks returns a copy of the unit's tasks, newest first.
func (c *Collection) Tasks(unitID string) []models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.units[unitID])
}

// IDs returns the set of task identities known for the unit.
func (c *Collection) IDs(unitID string) map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]struct{}, len(c.units[unitID]))
	for _, t := range c.units[unitID] {
		ids[t.ID] = struct{}{}
	}
	return ids
}

// Len returns the number of tasks known for the unit.
func (c *Collection) Len(unitID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.units[unitID])
}
