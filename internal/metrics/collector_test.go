package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpPollFetch, 100*time.Millisecond, nil)
	c.RecordTiming(OpPollFetch, 300*time.Millisecond, errors.New("boom"))
	c.RecordTiming(OpPollFetch, 200*time.Millisecond, nil)

	snap := c.Snapshot().Op(OpPollFetch)
	require.NotNil(t, snap)
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(600), snap.TotalTimeMs)
	assert.Equal(t, 200.0, snap.AvgTimeMs)
	assert.Equal(t, int64(100), snap.MinTimeMs)
	assert.Equal(t, int64(300), snap.MaxTimeMs)
	assert.Nil(t, snap.TotalInputTokens)
}

func TestCollectorUnusedOpIsAbsent(t *testing.T) {
	c := NewCollector()
	assert.Nil(t, c.Snapshot().Op(OpSubmit))
}

func TestCollectorLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 120, 40)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 80, 60)

	snap := c.Snapshot().Op(OpLLMGenerate)
	require.NotNil(t, snap)
	require.NotNil(t, snap.TotalInputTokens)
	assert.Equal(t, int64(200), *snap.TotalInputTokens)
	assert.Equal(t, int64(100), *snap.TotalOutputTokens)
}

func TestCollectorTime(t *testing.T) {
	c := NewCollector()
	want := errors.New("fail")
	err := c.Time(OpEvaluate, func() error { return want })

	assert.ErrorIs(t, err, want)
	assert.Equal(t, int64(1), c.Snapshot().Op(OpEvaluate).Failures)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpSubmit, time.Millisecond, nil)
		_ = c.Time(OpSubmit, func() error { return nil })
	})
}
