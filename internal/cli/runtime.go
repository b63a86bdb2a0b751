package cli

import (
	"fmt"
	"time"

	"github.com/harun/engram/internal/config"
	"github.com/harun/engram/internal/logger"
	"github.com/harun/engram/pkg/memory"
	"github.com/harun/engram/pkg/store"
	"github.com/harun/engram/pkg/workerpool"
	"github.com/rs/zerolog"
)

// runtime bundles the wired subsystem for a CLI invocation.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	pool    *workerpool.Pool
	manager *memory.Manager
}

// buildRuntime loads config and wires store, pool, and memory manager.
// quiet disables console log output for one-shot commands whose stdout
// is the result itself.
func buildRuntime(quiet bool) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   !quiet,
		Pretty:    !quiet,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	zl := log.GetZerolog()

	st, err := store.Open(store.Config{
		Path:   cfg.Store.Path,
		Logger: zl,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	pool := workerpool.New(zl)

	var provider memory.Provider
	if cfg.Embedding.APIKey != "" {
		provider, err = memory.NewOpenAIProvider(memory.OpenAIConfig{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			Timeout:   time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond,
			Logger:    zl,
		})
		if err != nil {
			pool.Close()
			st.Close()
			log.Close()
			return nil, fmt.Errorf("failed to init embedding provider: %w", err)
		}
	}

	manager, err := memory.NewManager(memory.Config{
		Store:            st,
		Provider:         provider,
		Pool:             pool,
		IndexPath:        cfg.Memory.IndexPath,
		Dimension:        cfg.Embedding.Dimension,
		BatchSize:        cfg.Embedding.BatchSize,
		CacheCeiling:     cfg.Memory.CacheCeiling,
		Debounce:         time.Duration(cfg.Memory.DebounceSeconds) * time.Second,
		PeriodicSpec:     cfg.Memory.PeriodicFlush,
		SemanticWeight:   cfg.Memory.SemanticWeight,
		KeywordWeight:    cfg.Memory.KeywordWeight,
		UseTimeDecay:     cfg.Memory.UseTimeDecay,
		DefaultLimit:     cfg.Memory.DefaultLimit,
		MinSimilarity:    cfg.Memory.MinSimilarity,
		LegacyScoreFloor: cfg.Memory.LegacyScoreFloor,
		WatchStore:       cfg.Memory.WatchStoreChanges,
		Logger:           zl,
	})
	if err != nil {
		pool.Close()
		st.Close()
		log.Close()
		return nil, fmt.Errorf("failed to init memory manager: %w", err)
	}

	return &runtime{
		cfg:     cfg,
		log:     log,
		store:   st,
		pool:    pool,
		manager: manager,
	}, nil
}

func (r *runtime) logger() zerolog.Logger {
	return r.log.GetZerolog()
}

// close tears the runtime down in reverse wiring order.
func (r *runtime) close() {
	r.manager.Close()
	r.pool.Close()
	r.store.Close()
	r.log.Close()
}
