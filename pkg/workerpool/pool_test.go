package workerpool

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool() *Pool {
	return New(zerolog.New(os.Stdout).Level(zerolog.Disabled))
}

func TestSubmit_ReturnsResult(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	result, err := pool.Submit(context.Background(), LaneDisk, func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestSubmit_PropagatesError(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	_, err := pool.Submit(context.Background(), LaneDisk, func(ctx context.Context) (interface{}, error) {
		return nil, assert.AnError
	})

	assert.ErrorIs(t, err, assert.AnError)
}

func TestSubmit_SerialLaneIsFIFO(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			// Stagger submissions so queue order matches i.
			time.Sleep(time.Duration(i*20) * time.Millisecond)
			_, err := pool.Submit(context.Background(), LaneIndex, func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSubmit_LanesRunConcurrently(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	block := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Submit(context.Background(), LaneIndex, func(ctx context.Context) (interface{}, error) {
			<-block
			return nil, nil
		})
	}()

	// A disk-lane task completes while the index lane is blocked.
	done := make(chan struct{})
	go func() {
		_, _ = pool.Submit(context.Background(), LaneDisk, func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disk lane blocked behind index lane")
	}

	close(block)
	wg.Wait()
}

func TestSubmit_CallerCancellation(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		<-started
		cancel()
	}()

	_, err := pool.Submit(ctx, LaneDisk, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestClose_RejectsNewTasks(t *testing.T) {
	pool := newTestPool()
	pool.Close()

	_, err := pool.Submit(context.Background(), LaneDisk, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestStats(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	stats := pool.Stats()
	assert.Contains(t, stats, LaneIndex)
	assert.Contains(t, stats, LaneDisk)
	assert.Contains(t, stats, LaneEmbed)
	assert.Equal(t, 0, stats[LaneIndex]["running"])
}

func TestEmbedLaneConcurrency(t *testing.T) {
	pool := newTestPool()
	defer pool.Close()

	var running int32
	var peak int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Submit(context.Background(), LaneEmbed, func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, int32(4))
	assert.Greater(t, peak, int32(1))
}
