package memory

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingScheduler(t *testing.T, debounce time.Duration) (*Scheduler, *atomic.Int64) {
	t.Helper()
	var flushes atomic.Int64
	s := NewScheduler(SchedulerConfig{
		Flush: func() bool {
			flushes.Add(1)
			return true
		},
		Debounce:     debounce,
		PeriodicSpec: "@every 1h",
		Logger:       zerolog.Nop(),
	})
	return s, &flushes
}

func TestSchedulerDebounceCollapsesBursts(t *testing.T) {
	s, flushes := newCountingScheduler(t, 50*time.Millisecond)

	for i := 0; i < 10; i++ {
		s.RequestFlush()
	}
	assert.Equal(t, "pending", s.State())

	require.Eventually(t, func() bool {
		return flushes.Load() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), flushes.Load())
	assert.Equal(t, "idle", s.State())
}

func TestSchedulerCancelPending(t *testing.T) {
	s, flushes := newCountingScheduler(t, 30*time.Millisecond)

	s.RequestFlush()
	s.CancelPending()
	assert.Equal(t, "idle", s.State())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), flushes.Load())
}

func TestSchedulerForceFlush(t *testing.T) {
	s, flushes := newCountingScheduler(t, time.Hour)

	s.RequestFlush()
	require.True(t, s.ForceFlush())
	assert.Equal(t, int64(1), flushes.Load())
	assert.False(t, s.Pending())
	assert.False(t, s.LastFlush().IsZero())

	// The pending debounce was cancelled by the forced flush.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), flushes.Load())
}

func TestSchedulerStopFlushesOnce(t *testing.T) {
	s, flushes := newCountingScheduler(t, time.Hour)
	s.Start()

	s.RequestFlush()
	s.Stop()
	assert.Equal(t, int64(1), flushes.Load())
	assert.Equal(t, "stopped", s.State())

	// Requests after Stop are ignored.
	s.RequestFlush()
	assert.False(t, s.Pending())
}

func TestSchedulerFlushFailureDoesNotStick(t *testing.T) {
	var attempts atomic.Int64
	s := NewScheduler(SchedulerConfig{
		Flush: func() bool {
			return attempts.Add(1) > 1
		},
		Debounce:     10 * time.Millisecond,
		PeriodicSpec: "@every 1h",
		Logger:       zerolog.Nop(),
	})

	assert.False(t, s.ForceFlush())
	assert.True(t, s.LastFlush().IsZero())

	assert.True(t, s.ForceFlush())
	assert.False(t, s.LastFlush().IsZero())
}
