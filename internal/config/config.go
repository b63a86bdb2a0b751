package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main engram configuration
type Config struct {
	// Data directory (store, index artifacts, logs)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Store configuration
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Embedding service configuration
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Memory subsystem tuning
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// StoreConfig holds backing store configuration
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"` // SQLite database file
}

// EmbeddingConfig holds embedding service configuration.
// An empty APIKey leaves the service unconfigured; search degrades to
// keyword-only.
type EmbeddingConfig struct {
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
	BatchSize int    `json:"batch_size" mapstructure:"batch_size"`
	TimeoutMs int    `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// MemoryConfig tunes the retrieval core
type MemoryConfig struct {
	IndexPath         string  `json:"index_path" mapstructure:"index_path"` // base path for the index artifact pair
	CacheCeiling      int     `json:"cache_ceiling" mapstructure:"cache_ceiling"`
	DebounceSeconds   int     `json:"debounce_seconds" mapstructure:"debounce_seconds"`
	PeriodicFlush     string  `json:"periodic_flush" mapstructure:"periodic_flush"` // cron spec, e.g. "@every 5m"
	SemanticWeight    float64 `json:"semantic_weight" mapstructure:"semantic_weight"`
	KeywordWeight     float64 `json:"keyword_weight" mapstructure:"keyword_weight"`
	UseTimeDecay      bool    `json:"use_time_decay" mapstructure:"use_time_decay"`
	DefaultLimit      int     `json:"default_limit" mapstructure:"default_limit"`
	MinSimilarity     float64 `json:"min_similarity" mapstructure:"min_similarity"`
	LegacyScoreFloor  float64 `json:"legacy_score_floor" mapstructure:"legacy_score_floor"`
	WatchStoreChanges bool    `json:"watch_store_changes" mapstructure:"watch_store_changes"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with sane defaults
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 32,
			TimeoutMs: 30000,
		},
		Memory: MemoryConfig{
			CacheCeiling:      10000,
			DebounceSeconds:   30,
			PeriodicFlush:     "@every 5m",
			SemanticWeight:    1.0,
			KeywordWeight:     1.0,
			UseTimeDecay:      true,
			DefaultLimit:      10,
			MinSimilarity:     0.5,
			LegacyScoreFloor:  0.1,
			WatchStoreChanges: true,
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Port:    8787,
			Host:    "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    7,
			Redaction: true,
		},
	}
}

// String returns a JSON representation with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Embedding.APIKey != "" {
		masked.Embedding.APIKey = "***"
	}
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(data)
}
