package models

import (
	"errors"
	"testing"
)

func mcTask(correct ...bool) Task {
	task := Task{ID: "t1", Type: TaskTypeMultipleChoice, Question: "Q?"}
	for i, c := range correct {
		task.Options = append(task.Options, Option{ID: string(rune('a' + i)), Text: "opt", IsCorrect: c})
	}
	return task
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"multiple choice one correct", mcTask(false, true, false), false},
		{"multiple choice none correct", mcTask(false, false), true},
		{"multiple choice two correct", mcTask(true, true), true},
		{"multiple choice single option", mcTask(true), true},
		{"free text reference answer", Task{ID: "t2", Type: TaskTypeFreeText, Options: []Option{{ID: "r", Text: "ref", IsCorrect: true}}}, false},
		{"free text no answer", Task{ID: "t2", Type: TaskTypeFreeText}, true},
		{"free text two answers", Task{ID: "t2", Type: TaskTypeFreeText, Options: []Option{{ID: "r", IsCorrect: true}, {ID: "s", IsCorrect: true}}}, true},
		{"repeated option id", Task{ID: "t4", Type: TaskTypeMultipleChoice, Options: []Option{{ID: "o1", Text: "X", IsCorrect: true}, {ID: "o1", Text: "Y"}}}, true},
		{"unknown type", Task{ID: "t3", Type: "essay"}, true},
		{"missing id", Task{Type: TaskTypeFreeText}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTask) {
					t.Errorf("Validate() = %v, want ErrInvalidTask", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	orig := mcTask(true, false)
	c := orig.Clone()
	c.Options[0].Text = "changed"
	if orig.Options[0].Text == "changed" {
		t.Error("Clone shares option storage with the original")
	}
}

func TestTaskUpdateApply(t *testing.T) {
	orig := mcTask(true, false)
	q := "New?"
	next := TaskUpdate{Question: &q}.Apply(orig)

	if next.Question != "New?" || orig.Question != "Q?" {
		t.Errorf("question: next=%q orig=%q", next.Question, orig.Question)
	}
	if len(next.Options) != 2 {
		t.Errorf("options changed without an options update: %d", len(next.Options))
	}
}

func TestGenerateRequestValidate(t *testing.T) {
	ok := GenerateRequest{UnitID: "u1", DocumentIDs: []string{"d1"}, NumTasks: 2, TaskType: TaskTypeMultipleChoice}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	bad := []GenerateRequest{
		{DocumentIDs: []string{"d1"}, NumTasks: 1, TaskType: TaskTypeFreeText},
		{UnitID: "u1", NumTasks: 1, TaskType: TaskTypeFreeText},
		{UnitID: "u1", DocumentIDs: []string{"d1"}, NumTasks: 0, TaskType: TaskTypeFreeText},
		{UnitID: "u1", DocumentIDs: []string{"d1"}, NumTasks: 1, TaskType: "essay"},
	}
	for i, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: Validate() = %v, want ErrInvalidRequest", i, err)
		}
	}
}
