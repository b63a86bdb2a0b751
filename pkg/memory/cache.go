package memory

import (
	"sort"
	"sync"

	"github.com/harun/engram/internal/observability"
	"github.com/rs/zerolog"
)

// DefaultCacheCeiling bounds the record cache before eviction kicks in.
const DefaultCacheCeiling = 10000

// RecordCache is a bounded map from memory id to record snapshot.
// When the ceiling is exceeded it evicts the oldest tenth of the
// ceiling by creation timestamp in one pass. Deliberately not an LRU:
// old memories are the cheapest to refetch and the least likely to
// win a ranked search.
type RecordCache struct {
	mu      sync.RWMutex
	records map[int64]Record
	ceiling int
	logger  zerolog.Logger
}

// NewRecordCache creates a cache with the given ceiling.
// Non-positive ceilings fall back to the default.
func NewRecordCache(ceiling int, logger zerolog.Logger) *RecordCache {
	if ceiling <= 0 {
		ceiling = DefaultCacheCeiling
	}
	return &RecordCache{
		records: make(map[int64]Record),
		ceiling: ceiling,
		logger:  logger,
	}
}

// Put inserts or updates a record and evicts if the ceiling is exceeded.
func (c *RecordCache) Put(rec Record) {
	c.mu.Lock()
	c.records[rec.ID] = rec
	c.evictLocked()
	c.mu.Unlock()
}

// PutAll inserts or updates a batch, evicting once at the end.
func (c *RecordCache) PutAll(recs []Record) {
	c.mu.Lock()
	for _, rec := range recs {
		c.records[rec.ID] = rec
	}
	c.evictLocked()
	c.mu.Unlock()
	observability.SetCachedRecords(c.Size())
}

// Get returns a copy of the record for id.
func (c *RecordCache) Get(id int64) (Record, bool) {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	return rec, ok
}

// All returns a snapshot slice of every cached record.
func (c *RecordCache) All() []Record {
	c.mu.RLock()
	out := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	c.mu.RUnlock()
	return out
}

// AllInScope returns cached records matching scope, or all records
// when scope is empty.
func (c *RecordCache) AllInScope(scope string) []Record {
	if scope == "" {
		return c.All()
	}
	c.mu.RLock()
	out := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		if rec.Scope == scope {
			out = append(out, rec)
		}
	}
	c.mu.RUnlock()
	return out
}

// Size returns the current record count.
func (c *RecordCache) Size() int {
	c.mu.RLock()
	n := len(c.records)
	c.mu.RUnlock()
	return n
}

// MaxID returns the highest cached memory id, or 0 when empty.
// Used for incremental refreshes since ids are append-only.
func (c *RecordCache) MaxID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var max int64
	for id := range c.records {
		if id > max {
			max = id
		}
	}
	return max
}

// Clear drops every cached record.
func (c *RecordCache) Clear() {
	c.mu.Lock()
	c.records = make(map[int64]Record)
	c.mu.Unlock()
	observability.SetCachedRecords(0)
}

// evictLocked removes the oldest ceiling/10 records by creation time
// when the cache has grown past the ceiling. Caller holds c.mu.
func (c *RecordCache) evictLocked() {
	if len(c.records) <= c.ceiling {
		return
	}

	byAge := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		byAge = append(byAge, rec)
	}
	sort.Slice(byAge, func(a, b int) bool {
		return byAge[a].CreatedAt.Before(byAge[b].CreatedAt)
	})

	evictCount := c.ceiling / 10
	if evictCount > len(byAge) {
		evictCount = len(byAge)
	}
	for _, rec := range byAge[:evictCount] {
		delete(c.records, rec.ID)
	}

	observability.RecordCacheEvictions(evictCount)
	c.logger.Debug().Int("evicted", evictCount).Int("remaining", len(c.records)).Msg("Cache eviction pass completed")
}
