package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/docindex/internal/chunk"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func catalogChunk(id, source, docType string) chunk.Chunk {
	return chunk.Chunk{
		ID:        id,
		Source:    source,
		Text:      "body of " + id,
		Heading:   "Heading " + id,
		DocType:   docType,
		CharCount: 10,
		WordCount: 3,
		LineStart: 1,
		LineEnd:   4,
	}
}

func TestCatalog_UpsertGetRoundtrip(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	chunks := []chunk.Chunk{
		catalogChunk("a", "docs/a.md", "docs"),
		catalogChunk("b", "docs/b.md", "bugfix"),
	}
	embeddings := [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}
	require.NoError(t, c.Upsert(ctx, "docs", chunks, embeddings))

	got, err := c.Get(ctx, "docs", []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, chunks[0], got["a"].Chunk)
	assert.Equal(t, embeddings[1], got["b"].Embedding)

	n, err := c.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCatalog_UpsertPreservesEmbeddingOnMetadataUpdate(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	ch := catalogChunk("a", "docs/a.md", "docs")
	require.NoError(t, c.Upsert(ctx, "docs", []chunk.Chunk{ch}, [][]float32{{1, 2, 3}}))

	// When: the same chunk is upserted without an embedding
	ch.Heading = "Updated Heading"
	require.NoError(t, c.Upsert(ctx, "docs", []chunk.Chunk{ch}, nil))

	got, err := c.Get(ctx, "docs", []string{"a"})
	require.NoError(t, err)
	require.Contains(t, got, "a")

	// Then: metadata updated, embedding kept
	assert.Equal(t, "Updated Heading", got["a"].Chunk.Heading)
	assert.Equal(t, []float32{1, 2, 3}, got["a"].Embedding)
}

func TestCatalog_CollectionsAreIsolated(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, "docs", []chunk.Chunk{catalogChunk("a", "a.md", "docs")}, nil))
	require.NoError(t, c.Upsert(ctx, "other", []chunk.Chunk{catalogChunk("b", "b.md", "docs")}, nil))

	got, err := c.Get(ctx, "docs", []string{"a", "b"})
	require.NoError(t, err)
	assert.Contains(t, got, "a")
	assert.NotContains(t, got, "b")

	names, err := c.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "other"}, names)
}

func TestCatalog_Delete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, "docs", []chunk.Chunk{
		catalogChunk("a", "a.md", "docs"),
		catalogChunk("b", "b.md", "docs"),
	}, nil))
	require.NoError(t, c.Delete(ctx, "docs", []string{"a"}))

	ids, err := c.AllIDs(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestCatalog_AllStreamsInBatches(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	want := []string{"c1", "c2", "c3", "c4", "c5"}
	for _, id := range want {
		require.NoError(t, c.Upsert(ctx, "docs",
			[]chunk.Chunk{catalogChunk(id, id+".md", "docs")}, nil))
	}

	var got []string
	var batches int
	err := c.All(ctx, "docs", 2, func(batch []StoredChunk) error {
		batches++
		for _, sc := range batch {
			got = append(got, sc.Chunk.ID)
		}
		return nil
	})
	require.NoError(t, err)

	// Then: every chunk arrives exactly once, in ID order
	assert.Equal(t, want, got)
	assert.Equal(t, 3, batches)
}

func TestCatalog_TypeDistribution(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, "docs", []chunk.Chunk{
		catalogChunk("a", "a.md", "docs"),
		catalogChunk("b", "b.md", "bugfix"),
		catalogChunk("c", "c.md", "bugfix"),
	}, nil))

	dist, err := c.TypeDistribution(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"docs": 1, "bugfix": 2}, dist)
}

func TestCatalog_RenameCollectionReplacesDestination(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, "docs",
		[]chunk.Chunk{catalogChunk("stale", "stale.md", "docs")}, nil))
	require.NoError(t, c.Upsert(ctx, "docs_migration",
		[]chunk.Chunk{catalogChunk("fresh", "fresh.md", "docs")}, [][]float32{{9, 9}}))

	require.NoError(t, c.RenameCollection(ctx, "docs_migration", "docs"))

	ids, err := c.AllIDs(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)

	// And: the source collection is empty afterwards
	n, err := c.Count(ctx, "docs_migration")
	require.NoError(t, err)
	assert.Zero(t, n)

	// And: embeddings rode along
	got, err := c.Get(ctx, "docs", []string{"fresh"})
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, got["fresh"].Embedding)
}

func TestCatalog_DropCollection(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, "docs",
		[]chunk.Chunk{catalogChunk("a", "a.md", "docs")}, nil))
	require.NoError(t, c.DropCollection(ctx, "docs"))

	n, err := c.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75, 0}
	assert.Equal(t, vec, decodeEmbedding(encodeEmbedding(vec)))

	assert.Nil(t, decodeEmbedding(nil))
	assert.Nil(t, decodeEmbedding([]byte{1, 2, 3}))
}
