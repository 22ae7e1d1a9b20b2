package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var historyLimit int

var versionsCmd = &cobra.Command{
	Use:   "versions <task-id>",
	Short: "List the versions of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := backend.TaskVersions(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}

		fmt.Printf("%-8s %-16s %-20s %s\n", "VERSION", "TYPE", "CREATED", "QUESTION")
		fmt.Println(strings.Repeat("-", 90))
		for _, v := range versions {
			fmt.Printf("%-8d %-16s %-20s %s\n", v.Version, v.Type, v.CreatedAt.Local().Format("2006-01-02 15:04:05"), truncate(v.Question, 50))
		}
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <task-id> <version1> <version2>",
	Short: "Show what changed between two versions of a task",
	Long: `Compare two versions of a task. Differences read from version1 to
version2 in the order given, so the newer version may come first.

Example:
  quizsync compare t1 1 3`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		v1, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		v2, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[2])
		}

		cmp, err := backend.CompareVersions(context.Background(), args[0], v1, v2)
		if err != nil {
			return fmt.Errorf("compare versions: %w", err)
		}

		fmt.Printf("Task %s: version %d → version %d\n\n", cmp.TaskID, cmp.Version1.Version, cmp.Version2.Version)
		if len(cmp.Differences) == 0 {
			fmt.Println("No differences")
			return nil
		}
		for _, d := range cmp.Differences {
			fmt.Printf("%s\n", d.Field)
			if d.Before != "" {
				fmt.Printf("  - %s\n", d.Before)
			}
			if d.After != "" {
				fmt.Printf("  + %s\n", d.After)
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show the change history of a task, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := backend.ChangeHistory(context.Background(), args[0], historyLimit)
		if err != nil {
			return fmt.Errorf("change history: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No changes recorded")
			return nil
		}

		fmt.Printf("%-20s %-4s %-20s %-12s %s\n", "TIME", "VER", "KIND", "USER", "CHANGE")
		fmt.Println(strings.Repeat("-", 100))
		for _, ev := range events {
			fmt.Printf("%-20s %-4d %-20s %-12s %s\n",
				ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.Version, ev.Kind, deref(ev.UserID, "-"), describeChange(ev))
		}
		return nil
	},
}

var answersCmd = &cobra.Command{
	Use:   "answers <task-id>",
	Short: "Show the answers given to a task, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := backend.AnswerHistory(context.Background(), args[0], historyLimit)
		if err != nil {
			return fmt.Errorf("answer history: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No answers recorded")
			return nil
		}

		fmt.Printf("%-20s %-4s %-14s %-12s %s\n", "TIME", "VER", "RESULT", "USER", "ANSWER")
		fmt.Println(strings.Repeat("-", 100))
		for _, ev := range events {
			fmt.Printf("%-20s %-4d %-14s %-12s %s\n",
				ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.TaskVersion, ev.Result, deref(ev.UserID, "-"), truncate(ev.Answer, 40))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of events (0 for all)")
	answersCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of events (0 for all)")
}

func describeChange(ev models.ChangeEvent) string {
	before, after := deref(ev.OldValue, ""), deref(ev.NewValue, "")
	switch {
	case before != "" && after != "":
		return fmt.Sprintf("%s → %s", truncate(before, 25), truncate(after, 25))
	case after != "":
		return truncate(after, 50)
	}
	return truncate(before, 50)
}

func deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
