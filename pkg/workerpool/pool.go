package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harun/engram/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Default lanes. LaneIndex serializes CPU-bound index rebuilds, LaneDisk
// serializes flushes so a debounced and a periodic save cannot race on
// the artifact pair, LaneEmbed allows a few embedding calls in flight.
const (
	LaneIndex = "index"
	LaneDisk  = "disk"
	LaneEmbed = "embed"
)

// ErrPoolClosed is returned for submissions after Close.
var ErrPoolClosed = errors.New("workerpool: pool closed")

// Task is an asynchronous operation to be executed on a lane
type Task func(ctx context.Context) (interface{}, error)

type taskResult struct {
	value interface{}
	err   error
}

type taskRecord struct {
	id     string
	lane   string
	task   Task
	ctx    context.Context
	result chan taskResult
}

type laneState struct {
	name        string
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// Pool executes tasks on named lanes with fixed per-lane concurrency
type Pool struct {
	lanes  map[string]*laneState
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// New creates a pool with the default lanes
func New(logger zerolog.Logger) *Pool {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	p.initLane(LaneIndex, 1)
	p.initLane(LaneDisk, 1)
	p.initLane(LaneEmbed, 4)

	return p
}

func (p *Pool) initLane(name string, concurrency int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.lanes[name]; !exists {
		p.lanes[name] = &laneState{
			name:        name,
			concurrency: concurrency,
		}
		p.logger.Debug().Str("lane", name).Int("concurrency", concurrency).Msg("Lane initialized")
	}
}

func (p *Pool) lane(name string) *laneState {
	p.mu.RLock()
	lane, ok := p.lanes[name]
	p.mu.RUnlock()
	if ok {
		return lane
	}
	// Unknown lanes get serial execution.
	p.initLane(name, 1)
	p.mu.RLock()
	lane = p.lanes[name]
	p.mu.RUnlock()
	return lane
}

// Submit enqueues a task on a lane and blocks until it completes or the
// caller's context is cancelled. A cancelled caller abandons the result;
// the task itself still observes cancellation through its context.
func (p *Pool) Submit(ctx context.Context, laneName string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	default:
	}

	id, err := gonanoid.New()
	if err != nil {
		id = "task"
	}

	rec := &taskRecord{
		id:     id,
		lane:   laneName,
		task:   task,
		ctx:    ctx,
		result: make(chan taskResult, 1),
	}

	lane := p.lane(laneName)

	lane.mu.Lock()
	lane.queue = append(lane.queue, rec)
	queued := len(lane.queue)
	lane.mu.Unlock()

	observability.SetPoolQueueSize(laneName, queued)
	p.schedule(lane)

	select {
	case res := <-rec.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	}
}

func (p *Pool) schedule(lane *laneState) {
	lane.mu.Lock()
	defer lane.mu.Unlock()

	for lane.running < lane.concurrency && len(lane.queue) > 0 {
		rec := lane.queue[0]
		lane.queue = lane.queue[1:]
		lane.running++

		observability.SetPoolQueueSize(lane.name, len(lane.queue))

		p.wg.Add(1)
		go p.run(lane, rec)
	}
}

func (p *Pool) run(lane *laneState, rec *taskRecord) {
	defer p.wg.Done()

	start := time.Now()
	value, err := rec.task(rec.ctx)
	duration := time.Since(start)

	observability.RecordPoolTask(lane.name, duration)

	if err != nil {
		p.logger.Debug().
			Str("lane", lane.name).
			Str("task_id", rec.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	}

	rec.result <- taskResult{value: value, err: err}

	lane.mu.Lock()
	lane.running--
	lane.mu.Unlock()

	p.schedule(lane)
}

// Stats returns queued and running counts per lane
func (p *Pool) Stats() map[string]map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make(map[string]map[string]int, len(p.lanes))
	for name, lane := range p.lanes {
		lane.mu.Lock()
		stats[name] = map[string]int{
			"queued":  len(lane.queue),
			"running": lane.running,
		}
		lane.mu.Unlock()
	}
	return stats
}

// WaitForActive waits up to timeout for running tasks to drain
func (p *Pool) WaitForActive(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops accepting tasks and waits for running tasks to finish
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}
