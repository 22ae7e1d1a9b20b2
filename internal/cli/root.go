// Package cli provides the command-line interface for quizsync.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizsync-go/internal/client"
	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/metrics"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	userID  string

	// Initialized in PersistentPreRunE
	cfg         config.Config
	backend     *client.Client
	collector   *metrics.Collector
	logger      *slog.Logger
	closeLogger func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quizsync",
	Short: "Generate, track and answer quiz tasks",
	Long: `Quizsync talks to a quiz backend that generates multiple-choice and free-text
tasks from documents in the background. It confirms when generation has
finished, keeps every task's version and answer history reachable, and
reports repository analytics.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Console logging only with -v; the log file always receives JSON.
		var console io.Writer
		level := cfg.LogLevel
		if verbose {
			console = os.Stderr
			level = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, level, console)

		collector = metrics.NewCollector()
		backend = client.New(cfg.BackendURL,
			client.WithTimeout(cfg.ClientTimeout),
			client.WithMetrics(collector))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id recorded on edits and answers")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(answersCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// currentUser returns the --user flag as an optional id.
func currentUser() *string {
	if userID == "" {
		return nil
	}
	return &userID
}
