package memory

import (
	"math"
	"sync"
	"time"
)

const (
	decayHalfLifeDays   = 30.0
	decayFloor          = 0.1
	recencyHalfLifeDays = 7.0
	recencyWeight       = 0.3
	accessBoostCap      = 1.5
	importanceCeiling   = 2.0
)

// timeDecay halves a unit score every half-life days, floored so very
// old memories stay retrievable rather than vanishing.
func timeDecay(ageDays, halfLifeDays float64) float64 {
	if ageDays <= 0 {
		return 1.0
	}
	decay := math.Pow(0.5, ageDays/halfLifeDays)
	if decay < decayFloor {
		return decayFloor
	}
	return decay
}

// accessRecord tracks per-memory access history for importance scoring.
type accessRecord struct {
	AccessCount  int
	LastAccessed time.Time
	BoostScore   float64
}

// ImportanceScorer computes a recency/frequency/manual composite score
// per memory. Access metadata is created lazily on first touch and kept
// for the memory's lifetime.
type ImportanceScorer struct {
	mu      sync.Mutex
	access  map[int64]*accessRecord
	nowFunc func() time.Time
}

// NewImportanceScorer creates a scorer with no access history.
func NewImportanceScorer() *ImportanceScorer {
	return &ImportanceScorer{
		access:  make(map[int64]*accessRecord),
		nowFunc: time.Now,
	}
}

// RecordAccess bumps the access count and stamps the access time.
func (s *ImportanceScorer) RecordAccess(id int64) {
	s.mu.Lock()
	rec := s.access[id]
	if rec == nil {
		rec = &accessRecord{}
		s.access[id] = rec
	}
	rec.AccessCount++
	rec.LastAccessed = s.nowFunc()
	s.mu.Unlock()
}

// SetBoost assigns a manual boost added after the composite product.
func (s *ImportanceScorer) SetBoost(id int64, boost float64) {
	s.mu.Lock()
	rec := s.access[id]
	if rec == nil {
		rec = &accessRecord{}
		s.access[id] = rec
	}
	rec.BoostScore = boost
	s.mu.Unlock()
}

// Score computes the importance of a memory created at createdAt.
//
// The result is decay(age, 30d) scaled up by access frequency (capped
// log boost) and access recency (7d half-life, never-accessed counts as
// 0.5), plus any manual boost, clamped to [0, 2]. The two half-lives
// are intentionally different: content relevance fades slower than the
// signal from a single recent lookup.
func (s *ImportanceScorer) Score(id int64, createdAt time.Time) float64 {
	s.mu.Lock()
	rec := s.access[id]
	if rec == nil {
		rec = &accessRecord{}
		s.access[id] = rec
	}
	count := rec.AccessCount
	lastAccessed := rec.LastAccessed
	boost := rec.BoostScore
	now := s.nowFunc()
	s.mu.Unlock()

	ageDays := now.Sub(createdAt).Hours() / 24
	decay := timeDecay(ageDays, decayHalfLifeDays)

	accessBoost := 1 + 0.1*math.Log(float64(count)+1)
	if accessBoost > accessBoostCap {
		accessBoost = accessBoostCap
	}

	recency := 0.5
	if !lastAccessed.IsZero() {
		sinceDays := now.Sub(lastAccessed).Hours() / 24
		recency = math.Pow(0.5, sinceDays/recencyHalfLifeDays)
	}

	importance := decay*accessBoost*(1+recency*recencyWeight) + boost
	if importance < 0 {
		return 0
	}
	if importance > importanceCeiling {
		return importanceCeiling
	}
	return importance
}
