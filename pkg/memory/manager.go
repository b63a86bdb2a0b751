package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/engram/internal/observability"
	"github.com/harun/engram/internal/tracing"
	"github.com/harun/engram/pkg/store"
	"github.com/harun/engram/pkg/workerpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const rrfK = 60

// StoreBackend is the persistence collaborator the manager reads
// memories from and appends new memories to.
type StoreBackend interface {
	SaveMemory(ctx context.Context, content string, embedding []byte, scope string) (int64, error)
	GetAllMemories(ctx context.Context, scope string) ([]store.Memory, error)
	GetMemoriesAfter(ctx context.Context, afterID int64, scope string) ([]store.Memory, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []byte) error
	Count(ctx context.Context) (int, error)
	Path() string
}

// SearchOptions controls a hybrid search request.
type SearchOptions struct {
	Limit          int
	Scope          string
	SemanticWeight float64
	KeywordWeight  float64
	UseTimeDecay   bool
}

// Config holds manager construction parameters.
type Config struct {
	Store            StoreBackend
	Provider         Provider // nil means keyword-only operation
	Pool             *workerpool.Pool
	IndexPath        string
	Dimension        int
	BatchSize        int
	CacheCeiling     int
	Debounce         time.Duration
	PeriodicSpec     string
	SemanticWeight   float64
	KeywordWeight    float64
	UseTimeDecay     bool
	DefaultLimit     int
	MinSimilarity    float64
	LegacyScoreFloor float64
	WatchStore       bool
	Logger           zerolog.Logger
}

// Manager orchestrates hybrid memory search: it owns the vector index,
// the record cache, the importance scorer, and the persistence
// scheduler, and fans a query out to semantic and keyword retrieval
// before fusing the ranked lists.
type Manager struct {
	store      StoreBackend
	provider   Provider
	pool       *workerpool.Pool
	index      *VectorIndex
	cache      *RecordCache
	scorer     *ImportanceScorer
	scheduler  *Scheduler
	watcher    *StoreWatcher
	cfg        Config
	logger     zerolog.Logger
	storeDirty atomic.Bool

	refreshMu   sync.Mutex
	lastRefresh atomic.Int64 // unix nanos
}

// NewManager wires the memory subsystem together. A previously saved
// index is loaded if present; otherwise the first search builds one
// from the store.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("memory manager requires a store")
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.5
	}
	if cfg.LegacyScoreFloor <= 0 {
		cfg.LegacyScoreFloor = 0.1
	}
	if cfg.SemanticWeight <= 0 {
		cfg.SemanticWeight = 1.0
	}
	if cfg.KeywordWeight <= 0 {
		cfg.KeywordWeight = 1.0
	}

	m := &Manager{
		store:    cfg.Store,
		provider: cfg.Provider,
		pool:     cfg.Pool,
		index:    NewVectorIndex(cfg.Dimension, cfg.Logger),
		cache:    NewRecordCache(cfg.CacheCeiling, cfg.Logger),
		scorer:   NewImportanceScorer(),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
	m.storeDirty.Store(true)

	if cfg.Provider == nil {
		m.logger.Info().Msg("No embedding service configured, operating keyword-only")
	}

	if cfg.IndexPath != "" && m.index.Load(cfg.IndexPath) {
		m.logger.Info().Int("vectors", m.index.Size()).Msg("Vector index restored from disk")
		observability.SetIndexSize(m.index.Size())
	}

	m.scheduler = NewScheduler(SchedulerConfig{
		Flush:        m.flushIndex,
		Debounce:     cfg.Debounce,
		PeriodicSpec: cfg.PeriodicSpec,
		Logger:       cfg.Logger,
	})
	m.scheduler.Start()

	if cfg.WatchStore {
		watcher, err := NewStoreWatcher(cfg.Store.Path(), func() {
			m.storeDirty.Store(true)
		}, cfg.Logger)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Store watcher unavailable, external writes will not be picked up")
		} else {
			m.watcher = watcher
		}
	}

	return m, nil
}

// DefaultSearchOptions returns options populated from the manager config.
func (m *Manager) DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:          m.cfg.DefaultLimit,
		SemanticWeight: m.cfg.SemanticWeight,
		KeywordWeight:  m.cfg.KeywordWeight,
		UseTimeDecay:   m.cfg.UseTimeDecay,
	}
}

// AddMemory embeds and persists a new memory. A failed embedding call
// degrades to storing the memory without a vector; only a store write
// failure reports false.
func (m *Manager) AddMemory(ctx context.Context, content, scope string) bool {
	if content == "" {
		return false
	}
	start := time.Now()
	log := tracing.LoggerFromContext(ctx, m.logger)

	var embedding []float32
	if m.provider != nil {
		vec, err := m.embedQuery(ctx, content)
		if err != nil {
			log.Error().Err(err).Msg("Embedding failed, storing memory without vector")
		} else {
			embedding = vec
		}
	}

	id, err := m.store.SaveMemory(ctx, content, EncodeEmbedding(embedding), scope)
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist memory")
		observability.GetAuditLogger().Record(observability.AuditEvent{
			Type:    "memory",
			Action:  "memory_added",
			Status:  "failure",
			Actor:   scope,
			TraceID: tracing.GetTraceID(ctx),
		})
		return false
	}
	observability.GetAuditLogger().Record(observability.AuditEvent{
		Type:     "memory",
		Action:   "memory_added",
		Status:   "success",
		Actor:    scope,
		TraceID:  tracing.GetTraceID(ctx),
		Metadata: map[string]interface{}{"memory_id": id},
	})

	m.cache.Put(Record{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Scope:     scope,
		CreatedAt: time.Now(),
	})
	if embedding != nil {
		if err := m.index.Add(id, embedding); err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("Memory not indexed")
		} else {
			observability.SetIndexSize(m.index.Size())
			m.scheduler.RequestFlush()
		}
	}

	observability.RecordMemoryAdd(time.Since(start))
	log.Debug().Int64("id", id).Str("scope", scope).Msg("Memory added")
	return true
}

// HybridSearch runs semantic and keyword retrieval for query and fuses
// the ranked lists with Reciprocal Rank Fusion. Degrades to the
// single available list when the other is empty; never returns an
// error to the caller, only a possibly-empty result list.
func (m *Manager) HybridSearch(ctx context.Context, query string, opts SearchOptions) []Result {
	ctx, span := tracing.StartSpan(ctx, "memory", "hybrid_search",
		attribute.Int("limit", opts.Limit),
		attribute.String("scope", opts.Scope),
	)
	defer span.End()
	start := time.Now()
	log := tracing.LoggerFromContext(ctx, m.logger)

	if opts.Limit <= 0 {
		opts.Limit = m.cfg.DefaultLimit
	}
	if len(tokenize(query)) == 0 {
		return nil
	}
	if err := m.refreshCache(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache refresh failed, searching stale cache")
	}

	fetchLimit := 2 * opts.Limit
	candidates := m.cache.AllInScope(opts.Scope)

	semantic := m.semanticSearch(ctx, query, fetchLimit, opts.Scope, log)
	keyword := KeywordSearch(query, candidates, fetchLimit)

	merged, provenance := fuseRanked(semantic, keyword, opts.SemanticWeight, opts.KeywordWeight)

	now := time.Now()
	results := make([]Result, 0, opts.Limit)
	for _, match := range merged {
		rec, ok := m.cache.Get(match.ID)
		if !ok {
			continue
		}
		ageDays := now.Sub(rec.CreatedAt).Hours() / 24
		score := match.Score
		if opts.UseTimeDecay {
			score *= timeDecay(ageDays, decayHalfLifeDays)
		}
		results = append(results, Result{
			Content:    rec.Content,
			Score:      score,
			MemoryID:   rec.ID,
			Provenance: provenance,
			AgeDays:    ageDays,
		})
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	for _, r := range results {
		m.scorer.RecordAccess(r.MemoryID)
	}

	observability.RecordMemorySearch(string(provenance), time.Since(start), len(results))
	log.Debug().
		Int("semantic", len(semantic)).
		Int("keyword", len(keyword)).
		Int("results", len(results)).
		Str("provenance", string(provenance)).
		Msg("Hybrid search completed")
	return results
}

// SearchMemory is the legacy entry point, returning plain contents.
// The relevance floor only applies to single-list results, where raw
// cosine or keyword scores pass through un-fused; fused hybrid scores
// live on a reciprocal-rank scale far below it and are kept as ranked.
func (m *Manager) SearchMemory(ctx context.Context, query string, limit int, scope string) []string {
	opts := m.DefaultSearchOptions()
	opts.Limit = limit
	opts.Scope = scope

	results := m.HybridSearch(ctx, query, opts)
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Provenance != ProvenanceHybrid && r.Score < m.cfg.LegacyScoreFloor {
			continue
		}
		out = append(out, r.Content)
	}
	return out
}

// Importance scores a memory by recency, access frequency, and manual
// boost. Unknown ids score as fresh unaccessed memories of age zero.
func (m *Manager) Importance(id int64) float64 {
	createdAt := time.Now()
	if rec, ok := m.cache.Get(id); ok {
		createdAt = rec.CreatedAt
	}
	return m.scorer.Score(id, createdAt)
}

// Boost sets the manual importance boost for a memory.
func (m *Manager) Boost(id int64, boost float64) {
	m.scorer.SetBoost(id, boost)
}

// Stats reports the current state of the subsystem.
func (m *Manager) Stats(ctx context.Context) Stats {
	storeCount, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to count stored memories")
		storeCount = -1
	} else {
		observability.SetStoreRecords(storeCount)
	}

	return Stats{
		IndexReady:           m.index.State() == IndexReady,
		IndexSize:            m.index.Size(),
		CachedCount:          m.cache.Size(),
		StoreCount:           storeCount,
		EmbeddingDimension:   m.cfg.Dimension,
		EmbeddingConfigured:  m.provider != nil,
		SchedulerState:       m.scheduler.State(),
		LastFlushTime:        m.scheduler.LastFlush(),
		LastCacheRefreshTime: time.Unix(0, m.lastRefresh.Load()),
	}
}

// BackfillEmbeddings embeds memories that were stored without a vector
// and persists the results. Returns how many memories gained an
// embedding; per-item failures are skipped, not fatal.
func (m *Manager) BackfillEmbeddings(ctx context.Context) (int, error) {
	if m.provider == nil {
		return 0, ErrEmbeddingUnavailable
	}
	if err := m.refreshCache(ctx); err != nil {
		return 0, err
	}

	var pending []Record
	for _, rec := range m.cache.All() {
		if rec.Embedding == nil {
			pending = append(pending, rec)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, rec := range pending {
		texts[i] = rec.Content
	}
	vectors, err := m.provider.GenerateBatch(ctx, texts, m.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("backfill batch failed: %w", err)
	}

	backfilled := 0
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		rec := pending[i]
		if err := m.store.UpdateEmbedding(ctx, rec.ID, EncodeEmbedding(vec)); err != nil {
			m.logger.Warn().Err(err).Int64("id", rec.ID).Msg("Failed to persist backfilled embedding")
			continue
		}
		rec.Embedding = vec
		m.cache.Put(rec)
		if err := m.index.Add(rec.ID, vec); err != nil {
			m.logger.Debug().Err(err).Int64("id", rec.ID).Msg("Backfilled memory not indexed")
			continue
		}
		backfilled++
	}

	if backfilled > 0 {
		observability.SetIndexSize(m.index.Size())
		m.scheduler.RequestFlush()
	}
	m.logger.Info().Int("pending", len(pending)).Int("backfilled", backfilled).Msg("Embedding backfill completed")
	return backfilled, nil
}

// RebuildIndex drops the index and rebuilds it from the full store.
func (m *Manager) RebuildIndex(ctx context.Context) error {
	m.storeDirty.Store(true)
	if err := m.refreshCache(ctx); err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	m.scheduler.RequestFlush()
	return nil
}

// ForceFlush persists the index synchronously.
func (m *Manager) ForceFlush() bool {
	return m.scheduler.ForceFlush()
}

// Close flushes the index and releases background resources.
func (m *Manager) Close() error {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.scheduler.Stop()
	return nil
}

// embedQuery runs an embedding call, through the pool's embed lane
// when one is attached so bursts cannot starve unrelated work.
func (m *Manager) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if m.provider == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if m.pool == nil {
		return m.provider.Generate(ctx, text)
	}
	res, err := m.pool.Submit(ctx, workerpool.LaneEmbed, func(ctx context.Context) (interface{}, error) {
		return m.provider.Generate(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return res.([]float32), nil
}

// semanticSearch returns the ranked semantic candidate list, from the
// vector index when Ready or a linear scan over cached embeddings
// otherwise. An unavailable or failing embedding service yields nil.
func (m *Manager) semanticSearch(ctx context.Context, query string, limit int, scope string, log zerolog.Logger) []Match {
	if m.provider == nil {
		return nil
	}
	queryVec, err := m.embedQuery(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrEmbeddingUnavailable) {
			log.Error().Err(err).Msg("Query embedding failed, falling back to keyword-only")
		}
		return nil
	}

	if m.index.State() == IndexReady {
		// No similarity floor on the index path; rank fusion and the
		// result limit do the pruning.
		matches := m.index.Search(queryVec, limit, -1)
		if scope == "" {
			return matches
		}
		filtered := matches[:0]
		for _, match := range matches {
			if rec, ok := m.cache.Get(match.ID); ok && rec.Scope == scope {
				filtered = append(filtered, match)
			}
		}
		return filtered
	}

	// Linear fallback over the cache, floored so weak matches do not
	// drown the keyword list.
	unit := normalize(queryVec)
	if unit == nil {
		return nil
	}
	matches := make([]Match, 0, limit)
	for _, rec := range m.cache.AllInScope(scope) {
		if len(rec.Embedding) != len(unit) {
			continue
		}
		candidate := normalize(rec.Embedding)
		if candidate == nil {
			continue
		}
		var dot float64
		for i, v := range candidate {
			dot += float64(v) * float64(unit[i])
		}
		if dot >= m.cfg.MinSimilarity {
			matches = append(matches, Match{ID: rec.ID, Score: dot})
		}
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// fuseRanked merges two ranked lists with weighted Reciprocal Rank
// Fusion. When only one list is nonempty it is returned as-is with
// that list's provenance.
func fuseRanked(semantic, keyword []Match, semanticWeight, keywordWeight float64) ([]Match, Provenance) {
	switch {
	case len(semantic) == 0 && len(keyword) == 0:
		return nil, ProvenanceHybrid
	case len(keyword) == 0:
		return semantic, ProvenanceSemantic
	case len(semantic) == 0:
		return keyword, ProvenanceKeyword
	}

	fused := make(map[int64]float64)
	for rank, match := range semantic {
		fused[match.ID] += semanticWeight / float64(rrfK+rank+1)
	}
	for rank, match := range keyword {
		fused[match.ID] += keywordWeight / float64(rrfK+rank+1)
	}

	merged := make([]Match, 0, len(fused))
	for id, score := range fused {
		merged = append(merged, Match{ID: id, Score: score})
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a].Score > merged[b].Score })
	return merged, ProvenanceHybrid
}

// refreshCache brings the cache and index up to date with the store.
// Incremental by max id in the common case; a full reload plus index
// rebuild when the store file changed underneath us.
func (m *Manager) refreshCache(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	start := time.Now()

	if m.storeDirty.Load() {
		memories, err := m.store.GetAllMemories(ctx, "")
		if err != nil {
			return fmt.Errorf("full cache refresh failed: %w", err)
		}
		records := m.decodeRecords(memories)
		m.cache.Clear()
		m.cache.PutAll(records)
		m.rebuildIndexFromCache(ctx)
		m.storeDirty.Store(false)
	} else {
		memories, err := m.store.GetMemoriesAfter(ctx, m.cache.MaxID(), "")
		if err != nil {
			return fmt.Errorf("incremental cache refresh failed: %w", err)
		}
		records := m.decodeRecords(memories)
		m.cache.PutAll(records)
		for _, rec := range records {
			if rec.Embedding == nil {
				continue
			}
			if err := m.index.Add(rec.ID, rec.Embedding); err != nil {
				m.logger.Debug().Err(err).Int64("id", rec.ID).Msg("Record not indexed during refresh")
			}
		}
		if len(records) > 0 {
			observability.SetIndexSize(m.index.Size())
			m.scheduler.RequestFlush()
		}
	}

	m.lastRefresh.Store(time.Now().UnixNano())
	observability.RecordCacheRefresh(time.Since(start))
	return nil
}

// decodeRecords converts store rows to records, dropping malformed
// embeddings rather than failing the refresh.
func (m *Manager) decodeRecords(memories []store.Memory) []Record {
	records := make([]Record, 0, len(memories))
	for _, mem := range memories {
		rec := Record{
			ID:        mem.ID,
			Content:   mem.Content,
			Scope:     mem.Scope,
			CreatedAt: mem.CreatedAt,
		}
		if len(mem.Embedding) > 0 {
			vec, err := DecodeEmbedding(mem.Embedding, m.cfg.Dimension)
			if err != nil {
				m.logger.Debug().Err(err).Int64("id", mem.ID).Msg("Skipping malformed stored embedding")
			} else {
				rec.Embedding = vec
			}
		}
		records = append(records, rec)
	}
	return records
}

// rebuildIndexFromCache rebuilds through the pool's index lane when
// one is attached, keeping the CPU burn off the query path.
func (m *Manager) rebuildIndexFromCache(ctx context.Context) {
	records := m.cache.All()
	if m.pool != nil {
		m.pool.Submit(ctx, workerpool.LaneIndex, func(ctx context.Context) (interface{}, error) {
			m.index.Build(records)
			return nil, nil
		})
	} else {
		m.index.Build(records)
	}
	observability.SetIndexSize(m.index.Size())
}

// flushIndex persists the index through the pool's disk lane when one
// is attached.
func (m *Manager) flushIndex() bool {
	if m.cfg.IndexPath == "" {
		return false
	}
	if m.pool == nil {
		return m.index.Save(m.cfg.IndexPath)
	}
	res, err := m.pool.Submit(context.Background(), workerpool.LaneDisk, func(ctx context.Context) (interface{}, error) {
		return m.index.Save(m.cfg.IndexPath), nil
	})
	if err != nil {
		return false
	}
	return res.(bool)
}
