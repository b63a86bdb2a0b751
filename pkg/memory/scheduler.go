package memory

import (
	"sync"
	"time"

	"github.com/harun/engram/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// FlushFunc persists the index and reports success. Runs off the
// caller's goroutine for debounced and periodic flushes.
type FlushFunc func() bool

// Scheduler coordinates index persistence. Mutations request a
// debounced flush that collapses write bursts into one disk write
// 30 seconds later; an independent cron loop flushes every 5 minutes
// as a safety net. The two timers are cancellable separately and a
// failure of one flush never stops the next.
type Scheduler struct {
	mu        sync.Mutex
	flush     FlushFunc
	debounce  time.Duration
	timer     *time.Timer
	pending   bool
	stopped   bool
	cron      *cron.Cron
	lastFlush time.Time
	logger    zerolog.Logger
}

// SchedulerConfig holds persistence scheduler settings.
type SchedulerConfig struct {
	Flush        FlushFunc
	Debounce     time.Duration
	PeriodicSpec string
	Logger       zerolog.Logger
}

// NewScheduler creates a scheduler; Start must be called to arm the
// periodic loop.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 30 * time.Second
	}
	if cfg.PeriodicSpec == "" {
		cfg.PeriodicSpec = "@every 5m"
	}

	s := &Scheduler{
		flush:    cfg.Flush,
		debounce: cfg.Debounce,
		cron:     cron.New(),
		logger:   cfg.Logger,
	}

	_, err := s.cron.AddFunc(cfg.PeriodicSpec, func() {
		s.runFlush("periodic")
	})
	if err != nil {
		// Only reachable with a malformed spec; fall back to the default.
		s.logger.Error().Err(err).Str("spec", cfg.PeriodicSpec).Msg("Invalid periodic flush spec, using 5m default")
		s.cron.AddFunc("@every 5m", func() {
			s.runFlush("periodic")
		})
	}
	return s
}

// Start arms the periodic flush loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// RequestFlush schedules a debounced flush. A second request while one
// is pending is a no-op, so bursts of mutations produce a single write.
func (s *Scheduler) RequestFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
		s.runFlush("debounce")
	})
}

// CancelPending drops any pending debounced flush without touching the
// periodic loop.
func (s *Scheduler) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
}

// ForceFlush runs a flush synchronously. Used for orderly shutdown.
func (s *Scheduler) ForceFlush() bool {
	s.CancelPending()
	return s.runFlush("force")
}

// Pending reports whether a debounced flush is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// LastFlush returns the time of the last successful flush.
func (s *Scheduler) LastFlush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}

// State returns "stopped", "pending", or "idle".
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return "stopped"
	case s.pending:
		return "pending"
	default:
		return "idle"
	}
}

// Stop cancels both timers and runs one final synchronous flush.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.runFlush("shutdown")
}

func (s *Scheduler) runFlush(trigger string) bool {
	start := time.Now()
	ok := s.flush()
	observability.RecordIndexFlush(trigger, time.Since(start), ok)

	if ok {
		s.mu.Lock()
		s.lastFlush = time.Now()
		s.mu.Unlock()
		s.logger.Debug().Str("trigger", trigger).Dur("took", time.Since(start)).Msg("Index flushed")
	} else {
		s.logger.Warn().Str("trigger", trigger).Msg("Index flush failed, will retry on next trigger")
	}
	return ok
}
