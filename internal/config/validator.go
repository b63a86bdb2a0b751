package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an embedding service API key format
func (v *Validator) ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("embedding API key cannot be empty")
	}
	if !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}
	return nil
}

// ValidateEmbedding validates the embedding configuration. An empty API
// key is allowed: the service then runs keyword-only.
func (v *Validator) ValidateEmbedding(cfg EmbeddingConfig) error {
	if cfg.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.APIKey); err != nil {
			return err
		}
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", cfg.BatchSize)
	}
	return nil
}

// ValidateMemory validates the memory tuning block
func (v *Validator) ValidateMemory(cfg MemoryConfig) error {
	if cfg.CacheCeiling <= 0 {
		return fmt.Errorf("cache ceiling must be positive, got %d", cfg.CacheCeiling)
	}
	if cfg.DebounceSeconds <= 0 {
		return fmt.Errorf("debounce seconds must be positive, got %d", cfg.DebounceSeconds)
	}
	if cfg.SemanticWeight < 0 || cfg.KeywordWeight < 0 {
		return fmt.Errorf("search weights cannot be negative")
	}
	if cfg.MinSimilarity < 0 || cfg.MinSimilarity > 1 {
		return fmt.Errorf("min similarity must be in [0, 1], got %g", cfg.MinSimilarity)
	}
	return nil
}

// ValidateGateway validates the gateway block when enabled
func (v *Validator) ValidateGateway(cfg GatewayConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return fmt.Errorf("gateway shared secret is required when the gateway is enabled")
	}
	return nil
}

// Validate validates the whole config
func (v *Validator) Validate(cfg *Config) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if err := v.ValidateEmbedding(cfg.Embedding); err != nil {
		return err
	}
	if err := v.ValidateMemory(cfg.Memory); err != nil {
		return err
	}
	return v.ValidateGateway(cfg.Gateway)
}
