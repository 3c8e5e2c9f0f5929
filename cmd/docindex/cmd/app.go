package cmd

import (
	"context"
	"log/slog"

	"github.com/kbforge/docindex/internal/config"
	"github.com/kbforge/docindex/internal/embed"
	"github.com/kbforge/docindex/internal/extract"
	"github.com/kbforge/docindex/internal/index"
	"github.com/kbforge/docindex/internal/quality"
	"github.com/kbforge/docindex/internal/search"
	"github.com/kbforge/docindex/internal/store"
)

// app wires the full pipeline for one CLI invocation.
type app struct {
	cfg      *config.Config
	store    *store.Store
	embedder embed.Embedder
	indexer  *index.Indexer
	migrator *index.Migrator
}

// openApp builds the pipeline from the resolved configuration.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var rerankers *search.RerankerCache
	if cfg.Search.Reranker.Enabled {
		endpoint := cfg.Search.Reranker.Endpoint
		rerankers = search.NewRerankerCache(search.DefaultRerankerCacheSize,
			func(model string) search.Reranker {
				return search.NewHTTPReranker(endpoint, model)
			})
	}
	engine := search.NewEngine(search.Config{
		Hybrid: cfg.Search.Hybrid,
		Fusion: search.FusionConfig{
			K:             cfg.Search.RRFK,
			VectorWeight:  cfg.Search.VectorWeight,
			KeywordWeight: cfg.Search.KeywordWeight,
		},
		MinRelevance: cfg.Search.MinRelevance,
		RerankModel:  cfg.Search.Reranker.Model,
	}, rerankers)

	ix, err := index.New(cfg, st, embedder, extract.New(), quality.NewGate(), engine)
	if err != nil {
		embedder.Close()
		st.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		indexer:  ix,
		migrator: index.NewMigrator(ix),
	}, nil
}

// Close releases the pipeline in reverse dependency order.
func (a *app) Close() {
	if err := a.embedder.Close(); err != nil {
		slog.Debug("closing embedder", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing store", "error", err)
	}
}
