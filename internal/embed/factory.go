package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kbforge/docindex/internal/config"
)

// New builds an embedder from configuration and wraps it with an LRU
// cache. The static provider needs no external service and is what
// tests use.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Embeddings.Provider {
	case config.ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:  cfg.Embeddings.Endpoint,
			Model: cfg.Embeddings.Model,
		})
	case config.ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.Embeddings.OpenAIAPIKey,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	case config.ProviderStatic:
		inner = NewStaticEmbedder(cfg.Embeddings.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embeddings.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Embeddings.Provider, err)
	}

	slog.Info("embedder ready",
		"provider", cfg.Embeddings.Provider,
		"model", inner.ModelName(),
		"dimensions", inner.Dimensions())

	return NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
}
