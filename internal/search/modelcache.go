package search

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRerankerCacheSize bounds how many rerank clients are kept
// alive at once.
const DefaultRerankerCacheSize = 4

// RerankerCache owns the process's rerank clients, keyed by model
// name. Clients are built lazily on first use and held in an LRU, so
// switching models between queries reuses live clients instead of
// reconnecting. The cache is injected into the engine; no package
// state is involved.
type RerankerCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Reranker]
	build func(model string) Reranker
}

// NewRerankerCache creates a cache holding up to size clients, built
// on demand by build.
func NewRerankerCache(size int, build func(model string) Reranker) *RerankerCache {
	if size <= 0 {
		size = DefaultRerankerCacheSize
	}
	cache, _ := lru.New[string, Reranker](size)
	return &RerankerCache{cache: cache, build: build}
}

// Get returns the client for model, creating it on first use. An
// evicted model's client is simply rebuilt on its next use.
func (c *RerankerCache) Get(model string) Reranker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.cache.Get(model); ok {
		return r
	}
	r := c.build(model)
	c.cache.Add(model, r)
	return r
}
