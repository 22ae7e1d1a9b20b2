package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks <unit-id>",
	Short: "List the active tasks of a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := backend.TasksByUnit(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found")
			return nil
		}
		printTaskTable(tasks)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its options",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := backend.GetTask(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		printTask(task)
		return nil
	},
}

var (
	editQuestion string
	editCorrect  string
	editOptions  []string
)

var editCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit a task's question, options or correct answer",
	Long: `Edit a task. Every effective change creates a new version and one change
event per changed field; an edit that changes nothing is ignored.

--option replaces all options. Mark the correct one with a leading '*'.
--correct selects the correct option of the current options by id.

Examples:
  quizsync edit t1 --question "What is the capital of France?"
  quizsync edit t1 --correct 6f1c...
  quizsync edit t1 --option "*Paris" --option Lyon --option Nice`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editQuestion, "question", "", "new question text")
	editCmd.Flags().StringVar(&editCorrect, "correct", "", "id of the option to mark correct")
	editCmd.Flags().StringArrayVar(&editOptions, "option", nil, "replacement option (repeatable, '*' marks correct)")
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	update := models.TaskUpdate{UserID: currentUser()}

	if cmd.Flags().Changed("question") {
		update.Question = &editQuestion
	}

	switch {
	case len(editOptions) > 0 && editCorrect != "":
		return fmt.Errorf("--option and --correct are mutually exclusive")
	case len(editOptions) > 0:
		for _, raw := range editOptions {
			text, correct := strings.CutPrefix(raw, "*")
			update.Options = append(update.Options, models.Option{Text: strings.TrimSpace(text), IsCorrect: correct})
		}
	case editCorrect != "":
		task, err := backend.GetTask(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		if _, ok := task.Option(editCorrect); !ok {
			return fmt.Errorf("task %s has no option %s", task.ID, editCorrect)
		}
		update.Options = make([]models.Option, len(task.Options))
		for i, o := range task.Options {
			o.IsCorrect = o.ID == editCorrect
			update.Options[i] = o
		}
	}

	if update.Question == nil && update.Options == nil {
		return fmt.Errorf("nothing to change: pass --question, --option or --correct")
	}

	task, err := backend.EditTask(ctx, args[0], update)
	if err != nil {
		return fmt.Errorf("edit task: %w", err)
	}
	fmt.Println("Updated:")
	printTask(task)
	return nil
}

func printTaskTable(tasks []models.Task) {
	fmt.Printf("%-36s %-16s %-20s %s\n", "ID", "TYPE", "CREATED", "QUESTION")
	fmt.Println(strings.Repeat("-", 100))
	for _, t := range tasks {
		fmt.Printf("%-36s %-16s %-20s %s\n", t.ID, t.Type, t.CreatedAt.Local().Format("2006-01-02 15:04:05"), truncate(t.Question, 60))
	}
}

func printTask(t *models.Task) {
	fmt.Printf("Task: %s\n", t.ID)
	fmt.Printf("  Type: %s\n", t.Type)
	fmt.Printf("  Unit: %s\n", t.UnitID)
	if t.RepositoryID != "" {
		fmt.Printf("  Repository: %s\n", t.RepositoryID)
	}
	fmt.Printf("  Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
	if t.IsDeleted() {
		fmt.Printf("  Deleted: %s\n", t.DeletedAt.Format(time.RFC3339))
	}
	fmt.Printf("\n  %s\n\n", t.Question)

	for i, o := range t.Options {
		mark := " "
		if o.IsCorrect {
			mark = "*"
		}
		if t.Type == models.TaskTypeFreeText {
			fmt.Printf("  Reference answer: %s\n", o.Text)
			continue
		}
		fmt.Printf("  %s %d. %s  (%s)\n", mark, i+1, o.Text, o.ID)
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
