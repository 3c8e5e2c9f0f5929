package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/docindex/internal/embed"
)

func newTestRerankerCache(endpoint string) *RerankerCache {
	return NewRerankerCache(DefaultRerankerCacheSize, func(model string) Reranker {
		return NewHTTPReranker(endpoint, model)
	})
}

func TestRerankerCache_ReusesClientPerModel(t *testing.T) {
	// Given: a cache counting how often clients are built
	built := 0
	cache := NewRerankerCache(4, func(model string) Reranker {
		built++
		return NewHTTPReranker("http://localhost:9", model)
	})

	// When: the same model is requested twice and a second model once
	first := cache.Get("bge-reranker")
	second := cache.Get("bge-reranker")
	other := cache.Get("ms-marco")

	// Then: one client per model, identical instance on repeat
	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, built)
}

func TestRerankerCache_EvictionRebuilds(t *testing.T) {
	built := 0
	cache := NewRerankerCache(2, func(model string) Reranker {
		built++
		return NewHTTPReranker("http://localhost:9", model)
	})

	// Given: a full cache
	cache.Get("a")
	cache.Get("b")

	// When: a third model evicts the oldest
	cache.Get("c")
	cache.Get("a")

	// Then: "a" was rebuilt after eviction
	assert.Equal(t, 4, built)
}

func TestEngine_RerankModelOverridePerQuery(t *testing.T) {
	// Given: a rerank service recording the model each request names
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			var req rerankRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			seen = append(seen, req.Model)
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(rerankResponse{Scores: make([]float64, len(req.Documents))})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	engine := NewEngine(Config{Hybrid: true, RerankModel: "default-model"},
		newTestRerankerCache(srv.URL))
	backend := newFakeBackend()
	embedder := embed.NewStaticEmbedder("")

	// When: one search uses the default and one overrides the model
	_, err := engine.Search(context.Background(), backend, embedder,
		"connection pool", Options{TopK: 2})
	require.NoError(t, err)
	_, err = engine.Search(context.Background(), backend, embedder,
		"connection pool", Options{TopK: 2, RerankModel: "alt-model"})
	require.NoError(t, err)

	// Then: the service saw the default, then the override
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, "default-model", seen[0])
	assert.Equal(t, "alt-model", seen[1])
}
