package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/quizsync-go/internal/cache"
	"github.com/raphaelgruber/quizsync-go/internal/generation"
	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var (
	genUnit     string
	genDocs     []string
	genCount    int
	genType     string
	genNoUI     bool
	genNoResult bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate tasks for a unit and wait until they are confirmed",
	Long: `Ask the backend to generate tasks from one or more documents, then wait
until the new tasks can be confirmed. Synchronous answers resolve at once;
queued generation is confirmed by checking the unit with growing delays.

Finished jobs are archived locally; see 'quizsync jobs'.

Examples:
  quizsync generate --unit u1 --doc intro --doc chapter-2 -n 5
  quizsync generate --unit u1 --doc intro -n 3 --type free_text
  quizsync generate --unit u1 --doc intro -n 3 -v   # print timings`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genUnit, "unit", "", "target unit id (required)")
	generateCmd.Flags().StringArrayVar(&genDocs, "doc", nil, "source document id (repeatable, required)")
	generateCmd.Flags().IntVarP(&genCount, "num", "n", 5, "number of tasks to generate")
	generateCmd.Flags().StringVarP(&genType, "type", "t", string(models.TaskTypeMultipleChoice), "task type: multiple_choice or free_text")
	generateCmd.Flags().BoolVar(&genNoUI, "plain", false, "print plain progress lines instead of the interactive view")
	generateCmd.Flags().BoolVar(&genNoResult, "quiet", false, "do not list the generated tasks")
	_ = generateCmd.MarkFlagRequired("unit")
	_ = generateCmd.MarkFlagRequired("doc")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := models.GenerateRequest{
		UnitID:      genUnit,
		DocumentIDs: genDocs,
		NumTasks:    genCount,
		TaskType:    models.TaskType(genType),
	}
	if err := req.Validate(); err != nil {
		return err
	}

	// Seed the collection so tasks that already exist are never reported as new.
	collection := generation.NewCollection()
	existing, err := backend.TasksByUnit(ctx, req.UnitID)
	if err != nil {
		return fmt.Errorf("list unit tasks: %w", err)
	}
	collection.Merge(req.UnitID, existing)

	interactive := !genNoUI && term.IsTerminal(int(os.Stdout.Fd()))
	opts := []generation.Option{generation.WithLogger(logger)}
	if !interactive {
		opts = append(opts, generation.WithNotifier(generation.NotifierFunc(printNotification)))
	}
	dispatcher := generation.NewDispatcher(backend, collection, generation.NewRegistry(), cfg.Reconcile, opts...)

	h, err := dispatcher.Dispatch(ctx, req)
	if err != nil {
		return err
	}

	var res generation.Result
	if interactive {
		res, err = RunGenerationProgress(h, cfg.Reconcile.MaxAttempts)
		if err != nil {
			return err
		}
	} else {
		go printUpdates(h)
		<-h.Done()
		res = h.Result()
	}

	archiveJob(h.Job(), res)

	if !genNoResult && len(res.Tasks) > 0 {
		fmt.Println()
		printTaskTable(res.Tasks)
	}
	if verbose {
		fmt.Println()
		printMetrics(collector.Snapshot())
	}

	if res.Phase == generation.PhaseFailed {
		return fmt.Errorf("generation failed: %w", res.Err)
	}
	return nil
}

func printNotification(n generation.Notification) {
	prefix := map[generation.Level]string{
		generation.LevelPending: "…",
		generation.LevelSuccess: "✓",
		generation.LevelWarning: "!",
		generation.LevelError:   "✗",
	}[n.Level]
	fmt.Printf("%s %s\n", prefix, n.Message)
}

func printUpdates(h *generation.Handle) {
	for u := range h.Updates() {
		if u.Phase != generation.PhasePolling || u.Attempt == 0 {
			continue
		}
		line := fmt.Sprintf("  check %d: %d new", u.Attempt, u.Found)
		if u.Err != nil {
			line += fmt.Sprintf(" (error: %v)", u.Err)
		}
		if u.Next > 0 {
			line += fmt.Sprintf(", next check in %s", u.Next.Round(100*time.Millisecond))
		}
		fmt.Println(line)
	}
}

// archiveJob stores the finished job in the local cache. Failures only warn;
// the archive is informational.
func archiveJob(job *generation.Job, res generation.Result) {
	archive, err := cache.Open(cfg.CachePath)
	if err != nil {
		logger.Warn("job archive unavailable", "path", cfg.CachePath, "error", err)
		return
	}
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := archive.Save(ctx, cache.FromResult(job, res)); err != nil {
		logger.Warn("failed to archive job", "job_id", job.ID, "error", err)
	}
}

func printMetrics(s metrics.Snapshot) {
	fmt.Printf("Timings (%.1fs)\n", s.UptimeSeconds)
	fmt.Printf("═══════════════════════════════════════\n")

	ops := make([]string, 0, len(s.Operations))
	for op := range s.Operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	fmt.Printf("%-12s %6s %8s %10s %8s %8s\n", "OPERATION", "COUNT", "FAILURES", "AVG", "MIN", "MAX")
	for _, op := range ops {
		o := s.Operations[op]
		fmt.Printf("%-12s %6d %8d %8.1fms %6dms %6dms\n", op, o.Count, o.Failures, o.AvgTimeMs, o.MinTimeMs, o.MaxTimeMs)
	}
}
