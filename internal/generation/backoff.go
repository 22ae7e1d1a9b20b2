package generation

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollBackOff yields min(Base × Factor^n, Max) plus up to MaxJitter of random
// jitter for the n-th wait. It implements backoff.BackOff.
type PollBackOff struct {
	Base      time.Duration
	Max       time.Duration
	Factor    float64
	MaxJitter time.Duration

	// Jitter returns a value in [0, max). Defaults to a uniform random source.
	Jitter func(max time.Duration) time.Duration

	attempt int
}

var _ backoff.BackOff = (*PollBackOff)(nil)

// Delay returns the capped delay for attempt n without jitter.
// It is non-decreasing in n.
func (b *PollBackOff) Delay(n int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(n))
	if d >= float64(b.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return b.Max
	}
	return time.Duration(d)
}

// NextBackOff returns the next delay including jitter.
func (b *PollBackOff) NextBackOff() time.Duration {
	d := b.Delay(b.attempt)
	b.attempt++
	if b.MaxJitter <= 0 {
		return d
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = randomJitter
	}
	return d + jitter(b.MaxJitter)
}

// Reset restarts the sequence.
func (b *PollBackOff) Reset() {
	b.attempt = 0
}

func randomJitter(max time.Duration) time.Duration {
	return time.Duration(rand.Int64N(int64(max)))
}

// linearBackOff waits Step, 2×Step, 3×Step and so on.
type linearBackOff struct {
	Step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.Step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// Clock abstracts time so reconciliation can run against a fake in tests.
type Clock interface {
	Now() time.Time
	NewTimer() backoff.Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// NewTimer returns an unstarted timer.
func (SystemClock) NewTimer() backoff.Timer { return &systemTimer{} }

type systemTimer struct {
	timer *time.Timer
}

func (t *systemTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *systemTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *systemTimer) C() <-chan time.Time {
	return t.timer.C
}
