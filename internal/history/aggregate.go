package history

import (
	"maps"
	"slices"

	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Aggregator folds change, answer and visit events into statistics.
// Folding is idempotent per event ID, so incremental folding and a full
// recount over the same log always agree. The zero value is not usable;
// call NewAggregator.
type Aggregator struct {
	seen map[string]struct{}

	created map[string]struct{}
	edited  map[string]struct{}
	deleted map[string]struct{}
	edits   int

	answers models.AnswerStats
	pages   *metrics.Collector
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		seen:    make(map[string]struct{}),
		created: make(map[string]struct{}),
		edited:  make(map[string]struct{}),
		deleted: make(map[string]struct{}),
		pages:   metrics.NewCollector(),
	}
}

// first reports whether key has not been folded before and marks it.
func (a *Aggregator) first(key string) bool {
	if key == "" {
		return true
	}
	if _, ok := a.seen[key]; ok {
		return false
	}
	a.seen[key] = struct{}{}
	return true
}

// AddChange folds one change event.
func (a *Aggregator) AddChange(ev models.ChangeEvent) {
	if !a.first("change:" + ev.ID) {
		return
	}
	switch {
	case ev.Kind == models.ChangeTaskCreated:
		a.created[ev.TaskID] = struct{}{}
	case ev.Kind == models.ChangeTaskDeleted:
		a.deleted[ev.TaskID] = struct{}{}
	case ev.Kind.IsEdit():
		a.edited[ev.TaskID] = struct{}{}
		a.edits++
	}
}

// AddAnswer folds one answer event.
func (a *Aggregator) AddAnswer(ev models.AnswerEvent) {
	if !a.first("answer:" + ev.ID) {
		return
	}
	a.answers.Total++
	switch ev.Result {
	case models.ResultCorrect:
		a.answers.Correct++
	case models.ResultIncorrect:
		a.answers.Incorrect++
	case models.ResultPartial:
		a.answers.Partial++
	case models.ResultContradictory:
		a.answers.Contradictory++
	case models.ResultIrrelevant:
		a.answers.Irrelevant++
	}
}

// AddVisit folds one page visit.
func (a *Aggregator) AddVisit(v models.PageVisit) {
	if !a.first("visit:" + v.ID) {
		return
	}
	a.pages.RecordTiming(v.Page, v.Duration(), nil)
}

// Lifecycle returns the lifecycle counters.
func (a *Aggregator) Lifecycle() models.LifecycleCounts {
	active := 0
	for id := range a.created {
		if _, gone := a.deleted[id]; !gone {
			active++
		}
	}
	return models.LifecycleCounts{
		Created:  len(a.created),
		Modified: len(a.edited),
		Deleted:  len(a.deleted),
		Active:   active,
		Edits:    a.edits,
	}
}

// Answers returns the answer counters. SuccessRate is correct answers over all answers.
func (a *Aggregator) Answers() models.AnswerStats {
	s := a.answers
	if s.Total > 0 {
		s.SuccessRate = float64(s.Correct) / float64(s.Total)
	}
	return s
}

// Pages returns time-on-page statistics sorted by page.
func (a *Aggregator) Pages() []models.PageTimeStats {
	snap := a.pages.Snapshot()
	pages := slices.Sorted(maps.Keys(snap.Operations))

	out := make([]models.PageTimeStats, 0, len(pages))
	for _, page := range pages {
		op := snap.Operations[page]
		out = append(out, models.PageTimeStats{
			Page:    page,
			Visits:  int(op.Count),
			TotalMs: op.TotalTimeMs,
			AvgMs:   op.AvgTimeMs,
			MinMs:   op.MinTimeMs,
			MaxMs:   op.MaxTimeMs,
		})
	}
	return out
}

// Statistics returns all aggregates for a repository.
func (a *Aggregator) Statistics(repositoryID string) models.RepositoryStatistics {
	life := a.Lifecycle()
	stats := models.RepositoryStatistics{
		RepositoryID: repositoryID,
		Lifecycle:    life,
		Answers:      a.Answers(),
		Pages:        a.Pages(),
	}
	if life.Created > 0 {
		stats.PercentModified = 100 * float64(life.Modified) / float64(life.Created)
		stats.PercentDeleted = 100 * float64(life.Deleted) / float64(life.Created)
	}
	return stats
}

// Recount computes repository statistics from the raw event log alone.
func Recount(events models.RepositoryEvents) models.RepositoryStatistics {
	a := NewAggregator()
	for _, ev := range events.Changes {
		a.AddChange(ev)
	}
	for _, ev := range events.Answers {
		a.AddAnswer(ev)
	}
	for _, v := range events.Visits {
		a.AddVisit(v)
	}
	return a.Statistics(events.RepositoryID)
}

// TaskStatistics computes the aggregates of a single task from its logs.
func TaskStatistics(taskID string, versions int, changes []models.ChangeEvent, answers []models.AnswerEvent) models.TaskStatistics {
	a := NewAggregator()
	for _, ev := range changes {
		a.AddChange(ev)
	}
	for _, ev := range answers {
		a.AddAnswer(ev)
	}
	_, deleted := a.deleted[taskID]
	return models.TaskStatistics{
		TaskID:   taskID,
		Versions: versions,
		Edits:    a.edits,
		Deleted:  deleted,
		Answers:  a.Answers(),
	}
}
