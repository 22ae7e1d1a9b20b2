package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/evaluation"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var answerCmd = &cobra.Command{
	Use:   "answer <task-id> [answer]",
	Short: "Answer a task and see how it was evaluated",
	Long: `Answer a task. Multiple-choice answers are checked locally and recorded;
pass the option number, id or text. Free-text answers are scored by the
backend. Without an answer argument the task is shown and the answer read
from stdin.

Examples:
  quizsync answer t1 2
  quizsync answer t1 "Paris is the capital of France"
  quizsync answer t1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnswer,
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	task, err := backend.GetTask(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task.IsDeleted() {
		return fmt.Errorf("task %s is deleted", task.ID)
	}

	var input string
	if len(args) == 2 {
		input = args[1]
	} else {
		printQuestion(task)
		fmt.Print("\nYour answer: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read answer: %w", err)
		}
		input = strings.TrimSpace(line)
	}
	if input == "" {
		return fmt.Errorf("empty answer")
	}

	engine := evaluation.NewEngine(backend, backend, logger)
	attempt := evaluation.NewAttempt(*task, currentUser())

	result, err := engine.Submit(ctx, attempt, parseAnswer(task, input))
	switch {
	case errors.Is(err, evaluation.ErrUnknownOption):
		return fmt.Errorf("no such option %q; pick 1-%d", input, len(task.Options))
	case errors.Is(err, evaluation.ErrContractViolation):
		return fmt.Errorf("the backend returned an invalid evaluation, try again: %w", err)
	case err != nil:
		return err
	}

	fmt.Printf("\n%s\n", evaluation.Label(result.Result))
	if result.Score != nil {
		fmt.Printf("Score: %d (0 is best)\n", *result.Score)
	}
	feedback := result.Feedback
	if task.Type == models.TaskTypeMultipleChoice && result.Result == models.ResultIncorrect {
		if correct, ok := task.CorrectOption(); ok {
			fmt.Printf("Correct answer: %s\n", correct.Text)
		}
		feedback = engine.Explain(ctx, attempt)
	}
	if feedback != "" {
		fmt.Printf("\n%s\n", feedback)
	}
	return nil
}

// parseAnswer maps input to an option for multiple choice: a 1-based
// number, an option id or the option text.
func parseAnswer(task *models.Task, input string) evaluation.Answer {
	if task.Type != models.TaskTypeMultipleChoice {
		return evaluation.Answer{Text: input}
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(task.Options) {
		return evaluation.Answer{OptionID: task.Options[n-1].ID}
	}
	if _, ok := task.Option(input); ok {
		return evaluation.Answer{OptionID: input}
	}
	return evaluation.Answer{Text: input}
}

func printQuestion(t *models.Task) {
	fmt.Printf("%s\n", t.Question)
	if t.Type != models.TaskTypeMultipleChoice {
		return
	}
	fmt.Println()
	for i, o := range t.Options {
		fmt.Printf("  %d. %s\n", i+1, o.Text)
	}
}
