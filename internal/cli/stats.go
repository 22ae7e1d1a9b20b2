package cli

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var (
	statsVerify bool
	statsTask   string
)

var statsCmd = &cobra.Command{
	Use:   "stats <repository-id>",
	Short: "Show repository analytics",
	Long: `Show lifecycle counts, answer outcomes and time on page for a repository.

--verify fetches the raw event log and checks that the backend's aggregates
equal a fresh recount.

Examples:
  quizsync stats geo
  quizsync stats geo --verify
  quizsync stats geo --task 6f1c2a...`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsVerify, "verify", false, "recount from raw events and compare")
	statsCmd.Flags().StringVar(&statsTask, "task", "", "show the statistics of one task instead")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if statsTask != "" {
		ts, err := backend.TaskStatistics(ctx, statsTask)
		if err != nil {
			return fmt.Errorf("task statistics: %w", err)
		}
		fmt.Printf("Task %s\n", ts.TaskID)
		fmt.Printf("  Versions: %d\n", ts.Versions)
		fmt.Printf("  Edits:    %d\n", ts.Edits)
		fmt.Printf("  Deleted:  %t\n\n", ts.Deleted)
		printAnswerStats(ts.Answers)
		return nil
	}

	stats, err := backend.RepositoryStatistics(ctx, args[0])
	if err != nil {
		return fmt.Errorf("repository statistics: %w", err)
	}
	printRepositoryStats(*stats)

	if !statsVerify {
		return nil
	}
	events, err := backend.RepositoryEvents(ctx, args[0])
	if err != nil {
		return fmt.Errorf("repository events: %w", err)
	}
	recount := history.Recount(*events)
	fmt.Println()
	if statsEqual(*stats, recount) {
		fmt.Printf("✓ Aggregates match a recount of %d change, %d answer and %d visit events\n",
			len(events.Changes), len(events.Answers), len(events.Visits))
		return nil
	}
	fmt.Println("✗ Aggregates differ from the recount:")
	printRepositoryStats(recount)
	return fmt.Errorf("statistics of %s do not match their event log", args[0])
}

// statsEqual compares aggregates, treating empty and missing page lists alike.
func statsEqual(a, b models.RepositoryStatistics) bool {
	if len(a.Pages) == 0 && len(b.Pages) == 0 {
		a.Pages, b.Pages = nil, nil
	}
	return reflect.DeepEqual(a, b)
}

func printRepositoryStats(s models.RepositoryStatistics) {
	fmt.Printf("Repository %s\n", s.RepositoryID)
	fmt.Printf("═══════════════════════════════════════\n\n")

	l := s.Lifecycle
	fmt.Println("Tasks")
	fmt.Printf("  Created:  %d\n", l.Created)
	fmt.Printf("  Active:   %d\n", l.Active)
	fmt.Printf("  Modified: %d (%.1f%%, %d edits)\n", l.Modified, s.PercentModified, l.Edits)
	fmt.Printf("  Deleted:  %d (%.1f%%)\n\n", l.Deleted, s.PercentDeleted)

	printAnswerStats(s.Answers)

	if len(s.Pages) > 0 {
		fmt.Println()
		fmt.Println("Time on page")
		fmt.Printf("  %-20s %6s %10s %10s %10s\n", "PAGE", "VISITS", "AVG", "MIN", "MAX")
		for _, p := range s.Pages {
			fmt.Printf("  %-20s %6d %9.1fs %9.1fs %9.1fs\n", p.Page, p.Visits, p.AvgMs/1000, float64(p.MinMs)/1000, float64(p.MaxMs)/1000)
		}
	}
}

func printAnswerStats(a models.AnswerStats) {
	fmt.Println("Answers")
	fmt.Printf("  Total:         %d\n", a.Total)
	fmt.Printf("  Correct:       %d\n", a.Correct)
	fmt.Printf("  Incorrect:     %d\n", a.Incorrect)
	fmt.Printf("  Partial:       %d\n", a.Partial)
	fmt.Printf("  Contradictory: %d\n", a.Contradictory)
	fmt.Printf("  Irrelevant:    %d\n", a.Irrelevant)
	fmt.Printf("  Success rate:  %.1f%%\n", a.SuccessRate*100)
}
