package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/client"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Long: `Soft-delete a task. Its versions, change history and answers are kept
and still count towards repository statistics.
Requires confirmation unless --force is used.

Examples:
  quizsync delete 6f1c2a...
  quizsync delete 6f1c2a... --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	task, err := backend.GetTask(ctx, args[0])
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("task not found: %s", args[0])
		}
		return fmt.Errorf("get task: %w", err)
	}
	if task.IsDeleted() {
		fmt.Printf("Already deleted: %s\n", task.ID)
		return nil
	}

	// Confirm deletion
	if !deleteForce {
		fmt.Printf("About to delete: %s (%s)\n", truncate(task.Question, 60), task.ID)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := backend.DeleteTask(ctx, task.ID, currentUser()); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	fmt.Printf("Deleted: %s\n", task.ID)
	return nil
}
