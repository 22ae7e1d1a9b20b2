package generation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollBackOffDelays(t *testing.T) {
	b := &PollBackOff{Base: 2 * time.Second, Max: 10 * time.Second, Factor: 1.5}

	want := []time.Duration{
		2 * time.Second,
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.NextBackOff(), "attempt %d", i)
	}

	b.Reset()
	assert.Equal(t, 2*time.Second, b.NextBackOff())
}

func TestPollBackOffMonotonicAndCapped(t *testing.T) {
	b := &PollBackOff{Base: 2 * time.Second, Max: 10 * time.Second, Factor: 1.5}
	prev := time.Duration(0)
	for n := 0; n < 200; n++ {
		d := b.Delay(n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, 10*time.Second, "attempt %d", n)
		prev = d
	}
}

func TestPollBackOffJitterBounded(t *testing.T) {
	b := &PollBackOff{Base: 2 * time.Second, Max: 10 * time.Second, Factor: 1.5, MaxJitter: time.Second}
	for n := 0; n < 100; n++ {
		base := b.Delay(n)
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+time.Second)
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{Step: time.Second}
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}
