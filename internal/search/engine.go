package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kbforge/docindex/internal/embed"
	"github.com/kbforge/docindex/internal/store"
)

// rerank pool sizing: fetch wider than top_k so fusion and the
// reranker have candidates to reorder.
const (
	fetchMultiplier      = 5
	rerankPoolMultiplier = 4
	typeFilterOverFetch  = 4
)

// Backend is the read surface the engine searches against. A
// store.Collection satisfies it; the indexer swaps the backend
// atomically during migration promotion.
type Backend interface {
	SearchVector(ctx context.Context, query []float32, k int) ([]store.VectorHit, error)
	SearchKeyword(ctx context.Context, query string, limit int, docType string) ([]store.KeywordHit, error)
	Get(ctx context.Context, ids []string) (map[string]store.StoredChunk, error)
	Count() int
	KeywordCount() int
}

// Config controls engine behavior.
type Config struct {
	Hybrid       bool
	Fusion       FusionConfig
	MinRelevance float64
	RerankModel  string
}

// Engine runs hybrid vector+keyword retrieval with RRF fusion and an
// optional rerank pass. Search is best-effort: a failing branch
// degrades to an empty contribution, never an error.
type Engine struct {
	cfg       Config
	rerankers *RerankerCache
}

// NewEngine creates a search engine. A nil reranker cache disables
// reranking.
func NewEngine(cfg Config, rerankers *RerankerCache) *Engine {
	if cfg.Fusion.K <= 0 {
		cfg.Fusion = DefaultFusionConfig()
	}
	return &Engine{cfg: cfg, rerankers: rerankers}
}

// rerankerFor resolves the rerank client for one search. An empty
// model falls back to the configured default.
func (e *Engine) rerankerFor(model string) Reranker {
	if e.rerankers == nil {
		return NoopReranker{}
	}
	if model == "" {
		model = e.cfg.RerankModel
	}
	return e.rerankers.Get(model)
}

// Search retrieves the chunks most relevant to query from backend,
// embedding the query with embedder.
func (e *Engine) Search(ctx context.Context, backend Backend, embedder embed.Embedder, query string, opts Options) ([]ScoredChunk, error) {
	if strings.TrimSpace(query) == "" || backend.Count() == 0 {
		return []ScoredChunk{}, nil
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	reranker := e.rerankerFor(opts.RerankModel)
	useReranker := reranker.Available(ctx)
	fetchK := opts.TopK
	if useReranker {
		fetchK = opts.TopK * fetchMultiplier
	}

	var (
		vectorHits  []store.VectorHit
		keywordHits []store.KeywordHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.vectorSearch(gctx, backend, embedder, query, fetchK, opts.TypeFilter)
		if err != nil {
			slog.Warn("vector search degraded to empty", "error", err)
			return nil
		}
		vectorHits = hits
		return nil
	})
	if e.cfg.Hybrid && backend.KeywordCount() > 0 {
		g.Go(func() error {
			hits, err := backend.SearchKeyword(gctx, query, fetchK, opts.TypeFilter)
			if err != nil {
				slog.Warn("keyword search degraded to empty", "error", err)
				return nil
			}
			keywordHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(vectorHits) == 0 && len(keywordHits) == 0 {
		return []ScoredChunk{}, nil
	}

	poolSize := opts.TopK
	if useReranker {
		poolSize = opts.TopK * rerankPoolMultiplier
	}

	vectorIDs := make([]string, len(vectorHits))
	vectorRelevance := make(map[string]float64, len(vectorHits))
	for i, hit := range vectorHits {
		vectorIDs[i] = hit.ID
		vectorRelevance[hit.ID] = clampRelevance((1 - float64(hit.Distance)) * 100)
	}

	keywordIDs := make([]string, len(keywordHits))
	keywordRelevance := normalizeKeywordScores(keywordHits)
	for i, hit := range keywordHits {
		keywordIDs[i] = hit.ID
	}

	fused := Fuse(e.cfg.Fusion, vectorIDs, keywordIDs, poolSize)

	matched := make(map[string][]string, len(keywordHits))
	for _, hit := range keywordHits {
		matched[hit.ID] = hit.MatchedTerms
	}

	results := make([]ScoredChunk, 0, len(fused))
	ids := make([]string, 0, len(fused))
	for _, hit := range fused {
		ids = append(ids, hit.ID)
		sc := ScoredChunk{FusedScore: hit.Score}
		if hit.VectorRank > 0 {
			sc.Relevance = vectorRelevance[hit.ID]
			sc.Sources = append(sc.Sources, SourceVector)
		} else {
			sc.Relevance = keywordRelevance[hit.ID]
		}
		if hit.KeywordRank > 0 {
			sc.Sources = append(sc.Sources, SourceKeyword)
			sc.MatchedTerms = matched[hit.ID]
		}
		results = append(results, sc)
	}

	stored, err := backend.Get(ctx, ids)
	if err != nil {
		slog.Warn("chunk enrichment failed, returning empty result", "error", err)
		return []ScoredChunk{}, nil
	}
	enriched := results[:0]
	for i, id := range ids {
		sc, ok := stored[id]
		if !ok {
			continue
		}
		results[i].Chunk = sc.Chunk
		enriched = append(enriched, results[i])
	}
	results = enriched

	if useReranker {
		results = e.rerank(ctx, reranker, query, results)
	}
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	minRelevance := opts.MinRelevance
	if minRelevance == 0 {
		minRelevance = e.cfg.MinRelevance
	}
	if minRelevance > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Relevance >= minRelevance {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	return results, nil
}

// vectorSearch embeds the query and runs ANN retrieval. A type filter
// over-fetches and filters on chunk metadata before truncating, so
// fusion sees an already-filtered pool.
func (e *Engine) vectorSearch(ctx context.Context, backend Backend, embedder embed.Embedder, query string, k int, typeFilter string) ([]store.VectorHit, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fetch := k
	if typeFilter != "" {
		fetch = k * typeFilterOverFetch
	}
	hits, err := backend.SearchVector(ctx, vec, fetch)
	if err != nil {
		return nil, err
	}
	if typeFilter == "" {
		return hits, nil
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	stored, err := backend.Get(ctx, ids)
	if err != nil {
		return nil, err
	}

	filtered := make([]store.VectorHit, 0, k)
	for _, hit := range hits {
		sc, ok := stored[hit.ID]
		if !ok || sc.Chunk.DocType != typeFilter {
			continue
		}
		filtered = append(filtered, hit)
		if len(filtered) == k {
			break
		}
	}
	return filtered, nil
}

// rerank scores (query, text) pairs and re-sorts; the clipped, scaled
// rerank score replaces the fused relevance. Failures keep the fused
// order.
func (e *Engine) rerank(ctx context.Context, reranker Reranker, query string, results []ScoredChunk) []ScoredChunk {
	if len(results) == 0 {
		return results
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Chunk.Text
	}

	scores, err := reranker.Rerank(ctx, query, docs)
	if err != nil || len(scores) != len(results) {
		if err != nil {
			slog.Warn("rerank failed, keeping fused order", "error", err)
		}
		return results
	}

	for i := range results {
		score := scores[i]
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		results[i].Relevance = score * 100
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	return results
}

// normalizeKeywordScores maps raw BM25 scores to 0-100 relative to
// the best score in this batch, since raw scores are not comparable
// across queries.
func normalizeKeywordScores(hits []store.KeywordHit) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return normalized
	}

	maxScore := 0.0
	for _, hit := range hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	for _, hit := range hits {
		if maxScore > 0 {
			normalized[hit.ID] = clampRelevance(hit.Score / maxScore * 100)
		}
	}
	return normalized
}

func clampRelevance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
