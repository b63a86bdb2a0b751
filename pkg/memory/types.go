package memory

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Provenance identifies which ranking signal produced a result
type Provenance string

const (
	ProvenanceSemantic Provenance = "semantic"
	ProvenanceKeyword  Provenance = "keyword"
	ProvenanceHybrid   Provenance = "hybrid"
)

// Record is a read-only cached snapshot of a stored memory
type Record struct {
	ID        int64
	Content   string
	Embedding []float32 // nil when the stored bytes were empty or malformed
	Scope     string
	CreatedAt time.Time
}

// Result is an ephemeral, per-query search result. Never persisted.
type Result struct {
	Content    string     `json:"content"`
	Score      float64    `json:"score"`
	MemoryID   int64      `json:"memory_id"`
	Provenance Provenance `json:"provenance"`
	AgeDays    float64    `json:"age_days"`
}

// Stats describes the current state of the memory subsystem
type Stats struct {
	IndexReady           bool      `json:"index_ready"`
	IndexSize            int       `json:"index_size"`
	CachedCount          int       `json:"cached_count"`
	StoreCount           int       `json:"store_count"`
	EmbeddingDimension   int       `json:"embedding_dimension"`
	EmbeddingConfigured  bool      `json:"embedding_configured"`
	SchedulerState       string    `json:"scheduler_state"`
	LastFlushTime        time.Time `json:"last_flush_time,omitzero"`
	LastCacheRefreshTime time.Time `json:"last_cache_refresh_time,omitzero"`
}

// EncodeEmbedding serializes a vector as little-endian float32 bytes
func EncodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding deserializes little-endian float32 bytes. When dim is
// positive the decoded vector must match it exactly; undersized or
// misaligned blobs are rejected.
func DecodeEmbedding(data []byte, dim int) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	n := len(data) / 4
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", n, dim)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
