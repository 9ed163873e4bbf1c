package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"NewsAggregator/internal/config"
	"NewsAggregator/internal/ports"
)

// ErrEmptyEmbedding is returned when the service answers with no vector.
var ErrEmptyEmbedding = errors.New("embedding service returned no vector")

// Embedder implements ports.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

var _ ports.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder from configuration.
func NewEmbedder(cfg config.EmbeddingConfig, log *slog.Logger) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return newEmbedder(client, log)
}

func newEmbedder(client embeddings.EmbedderClient, log *slog.Logger) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("wrap embedder: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Embedder{
		embedder: embedder,
		logger:   log.With("component", "llm-embedder"),
	}, nil
}

// Embed generates a vector embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding", "length", len(text))

	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}
