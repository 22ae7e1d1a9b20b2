package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger creates a logger that writes text to console and JSON to logFile.
// A nil console disables console output, which the CLI uses while a
// full-screen progress view owns the terminal.
// Returns the logger and a cleanup function that closes the file.
func SetupLogger(logFile string, level slog.Level, console io.Writer) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, opts))
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if len(handlers) == 0 {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
		logger := slog.New(slogmulti.Fanout(handlers...))
		logger.Warn("failed to open log file, file logging disabled", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}

	handlers = append(handlers, slog.NewJSONHandler(file, opts))
	return slog.New(slogmulti.Fanout(handlers...)), file.Close
}

// SetupLoggerWithWriters creates the same fan-out over arbitrary writers (for testing).
func SetupLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, opts),
		slog.NewJSONHandler(file, opts),
	))
}
