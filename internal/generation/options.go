package generation

import (
	"log/slog"
	"time"
)

// settings are shared by the Reconciler and the Dispatcher.
type settings struct {
	clock    Clock
	jitter   func(time.Duration) time.Duration
	logger   *slog.Logger
	notifier Notifier
}

// Option configures a Reconciler or Dispatcher.
type Option func(*settings)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithJitter replaces the random jitter source of the poll backoff.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(s *settings) { s.jitter = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithNotifier sets the receiver of user-facing notifications.
func WithNotifier(n Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:  SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
