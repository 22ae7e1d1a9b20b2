// Package history records task versions, change events and answer events,
// and derives comparisons and aggregate statistics from them.
package history

import (
	"slices"
	"strings"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// fieldChange is one structural difference between two task states.
type fieldChange struct {
	kind     models.ChangeKind
	field    string
	before   string
	after    string
	optionID string
}

// diffFields compares question, options and correctness of two task states.
// Options are matched by ID. Correctness is reported once, as a change of the
// set of correct options, however many flags flipped.
func diffFields(prevQ string, prev []models.Option, nextQ string, next []models.Option) []fieldChange {
	var changes []fieldChange

	if prevQ != nextQ {
		changes = append(changes, fieldChange{
			kind:   models.ChangeQuestionUpdated,
			field:  "question",
			before: prevQ,
			after:  nextQ,
		})
	}

	prevByID := indexOptions(prev)
	nextByID := indexOptions(next)

	for _, o := range next {
		old, ok := prevByID[o.ID]
		switch {
		case !ok:
			changes = append(changes, fieldChange{
				kind:     models.ChangeOptionAdded,
				field:    "options[" + o.ID + "]",
				after:    o.Text,
				optionID: o.ID,
			})
		case old.Text != o.Text:
			changes = append(changes, fieldChange{
				kind:     models.ChangeOptionUpdated,
				field:    "options[" + o.ID + "].text",
				before:   old.Text,
				after:    o.Text,
				optionID: o.ID,
			})
		}
	}
	for _, o := range prev {
		if _, ok := nextByID[o.ID]; !ok {
			changes = append(changes, fieldChange{
				kind:     models.ChangeOptionDeleted,
				field:    "options[" + o.ID + "]",
				before:   o.Text,
				optionID: o.ID,
			})
		}
	}

	prevCorrect, nextCorrect := correctIDs(prev), correctIDs(next)
	if !slices.Equal(prevCorrect, nextCorrect) {
		changes = append(changes, fieldChange{
			kind:   models.ChangeCorrectnessChanged,
			field:  "correct_option",
			before: correctTexts(prev),
			after:  correctTexts(next),
		})
	}

	return changes
}

func indexOptions(opts []models.Option) map[string]models.Option {
	m := make(map[string]models.Option, len(opts))
	for _, o := range opts {
		m[o.ID] = o
	}
	return m
}

func correctIDs(opts []models.Option) []string {
	var ids []string
	for _, o := range opts {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func correctTexts(opts []models.Option) string {
	var texts []string
	for _, o := range opts {
		if o.IsCorrect {
			texts = append(texts, o.Text)
		}
	}
	return strings.Join(texts, "; ")
}

// Diff returns one change event per changed field between prev and next.
// Identity, timestamps and sequence are left for the caller to fill in.
// An empty result means the edit is a no-op.
func Diff(prev, next models.Task) []models.ChangeEvent {
	changes := diffFields(prev.Question, prev.Options, next.Question, next.Options)
	events := make([]models.ChangeEvent, 0, len(changes))
	for _, c := range changes {
		ev := models.ChangeEvent{
			TaskID:       next.ID,
			RepositoryID: next.RepositoryID,
			Kind:         c.kind,
		}
		if c.kind != models.ChangeOptionAdded {
			ev.OldValue = ptr(c.before)
		}
		if c.kind != models.ChangeOptionDeleted {
			ev.NewValue = ptr(c.after)
		}
		if c.optionID != "" {
			ev.Metadata = map[string]string{"option_id": c.optionID}
		}
		events = append(events, ev)
	}
	return events
}

// Compare structurally compares two versions. Differences read from v1 to v2
// in argument order, whichever version is newer.
func Compare(v1, v2 models.TaskVersion) models.Comparison {
	var diffs []models.Difference
	if v1.Type != v2.Type {
		diffs = append(diffs, models.Difference{Field: "type", Before: string(v1.Type), After: string(v2.Type)})
	}
	for _, c := range diffFields(v1.Question, v1.Options, v2.Question, v2.Options) {
		diffs = append(diffs, models.Difference{Field: c.field, Before: c.before, After: c.after})
	}
	if diffs == nil {
		diffs = []models.Difference{}
	}
	return models.Comparison{
		TaskID:      v1.TaskID,
		Version1:    v1,
		Version2:    v2,
		Differences: diffs,
	}
}

func ptr[T any](v T) *T {
	return &v
}
