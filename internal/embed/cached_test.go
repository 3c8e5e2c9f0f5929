package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps an Embedder and counts how many texts reach
// the underlying model.
type countingEmbedder struct {
	Embedder
	embedded int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedded++
	return c.Embedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedded += len(texts)
	return c.Embedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	inner := &countingEmbedder{Embedder: NewStaticEmbedder("")}
	cached := NewCachedEmbedder(inner, 10)
	defer func() { _ = cached.Close() }()

	first, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedded)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{Embedder: NewStaticEmbedder("")}
	cached := NewCachedEmbedder(inner, 10)
	defer func() { _ = cached.Close() }()

	// Given: "a" is already cached
	_, err := cached.Embed(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 1, inner.embedded)

	// When: a batch mixes the hit with two misses
	vectors, err := cached.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// Then: only the misses reached the model
	assert.Equal(t, 3, inner.embedded)

	// And: a repeat batch is fully served from cache
	_, err = cached.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.embedded)
}

func TestCachedEmbedder_KeysIncludeModelName(t *testing.T) {
	alpha := NewCachedEmbedder(NewStaticEmbedder("alpha"), 10)
	beta := NewCachedEmbedder(NewStaticEmbedder("beta"), 10)
	defer func() { _ = alpha.Close() }()
	defer func() { _ = beta.Close() }()

	// Cache keys are salted with the model name, so two caches over
	// different models never collide even for identical text.
	assert.NotEqual(t, alpha.cacheKey("same text"), beta.cacheKey("same text"))
}

func TestCachedEmbedder_EvictsBeyondCapacity(t *testing.T) {
	inner := &countingEmbedder{Embedder: NewStaticEmbedder("")}
	cached := NewCachedEmbedder(inner, 2)
	defer func() { _ = cached.Close() }()

	for _, text := range []string{"one", "two", "three"} {
		_, err := cached.Embed(context.Background(), text)
		require.NoError(t, err)
	}
	require.Equal(t, 3, inner.embedded)

	// "one" was evicted by "three"; re-embedding it costs a model call
	_, err := cached.Embed(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.embedded)
}
