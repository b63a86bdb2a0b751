package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/engram/internal/observability"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// ErrEmbeddingUnavailable signals that no embedding service is configured.
// Callers fall back to keyword-only search.
var ErrEmbeddingUnavailable = errors.New("embedding service not configured")

// Provider generates vector embeddings from text
type Provider interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
	Dimension() int
}

// OpenAIProvider implements Provider using the OpenAI embeddings API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	logger    zerolog.Logger
}

// OpenAIConfig holds embedding provider configuration
type OpenAIConfig struct {
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// NewOpenAIProvider creates a new OpenAI embedding provider
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmbeddingUnavailable
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		switch cfg.Model {
		case "text-embedding-3-large":
			dimension = 3072
		default:
			dimension = 1536
		}
	}

	return &OpenAIProvider{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(cfg.Timeout),
		),
		model:     cfg.Model,
		dimension: dimension,
		logger:    cfg.Logger,
	}, nil
}

// Dimension returns the embedding dimension
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Generate embeds a single text
func (p *OpenAIProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateBatch embeds texts in fixed-size chunks. A failed chunk yields
// nil entries for its items without aborting the rest of the batch.
func (p *OpenAIProvider) GenerateBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 32
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := p.embed(ctx, texts[start:end])
		if err != nil {
			p.logger.Error().Err(err).
				Int("chunk_start", start).
				Int("chunk_size", end-start).
				Msg("Embedding chunk failed")
			continue
		}
		copy(results[start:end], vectors)
	}

	return results, nil
}

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	res, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	})
	observability.RecordEmbeddingCall(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d items, expected %d", len(res.Data), len(texts))
	}

	vectors := make([][]float32, len(res.Data))
	for i, item := range res.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	return vectors, nil
}
