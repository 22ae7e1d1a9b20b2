package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/cache"
)

var (
	jobsLimit int
	jobsPrune time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect archived generation jobs",
	Long: `List finished generation jobs from the local archive or inspect one by ID.

Examples:
  quizsync jobs                 # List recent jobs
  quizsync jobs abc123          # Show details for job abc123
  quizsync jobs --prune 720h    # Forget jobs older than 30 days`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "l", 20, "maximum number of jobs to list")
	jobsCmd.Flags().DurationVar(&jobsPrune, "prune", 0, "delete jobs older than this duration")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	archive, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open job archive: %w", err)
	}
	defer archive.Close()

	if jobsPrune > 0 {
		n, err := archive.Prune(ctx, time.Now().Add(-jobsPrune))
		if err != nil {
			return fmt.Errorf("prune jobs: %w", err)
		}
		fmt.Printf("Pruned %d job(s)\n", n)
		return nil
	}

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, archive, args[0])
	}
	return listJobs(ctx, archive)
}

func listJobs(ctx context.Context, archive *cache.Archive) error {
	jobs, err := archive.List(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-10s %-10s %-8s %s\n", "ID", "UNIT", "PHASE", "TASKS", "CHECKS", "STARTED")
	fmt.Println(strings.Repeat("-", 72))

	for _, job := range jobs {
		tasks := fmt.Sprintf("%d/%d", len(job.TaskIDs), job.Request.NumTasks)
		started := job.StartedAt.Local().Format("01-02 15:04:05")
		fmt.Printf("%-10s %-12s %-10s %-10s %-8d %s\n", job.ID, truncate(job.UnitID, 12), job.Phase, tasks, job.Attempts, started)
	}

	return nil
}

func showJob(ctx context.Context, archive *cache.Archive, id string) error {
	job, err := archive.Get(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Unit: %s\n", job.UnitID)
	fmt.Printf("  Documents: %s\n", strings.Join(job.Request.DocumentIDs, ", "))
	fmt.Printf("  Requested: %d %s\n", job.Request.NumTasks, job.Request.TaskType)
	fmt.Printf("  Phase: %s\n", job.Phase)
	if job.Path != "" {
		fmt.Printf("  Resolved via: %s\n", job.Path)
	}
	fmt.Printf("  Checks: %d\n", job.Attempts)
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
	fmt.Printf("  Duration: %s\n", job.Duration().Round(time.Millisecond))

	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}

	if len(job.TaskIDs) > 0 {
		fmt.Printf("\nTasks (%d):\n", len(job.TaskIDs))
		for _, t := range job.TaskIDs {
			fmt.Printf("  - %s\n", t)
		}
	}
	if len(job.Dropped) > 0 {
		fmt.Printf("\nCould not be loaded (%d):\n", len(job.Dropped))
		for _, t := range job.Dropped {
			fmt.Printf("  - %s\n", t)
		}
	}

	return nil
}
