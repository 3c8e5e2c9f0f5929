package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/docindex/internal/chunk"
)

func testChunk(id, text, docType string) chunk.Chunk {
	return chunk.Chunk{ID: id, Text: text, Source: "src/" + id + ".md", DocType: docType}
}

func newMemKeywordIndex(t *testing.T) *KeywordIndex {
	t.Helper()
	k, err := NewKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func TestKeywordIndex_SearchAndMatchedTerms(t *testing.T) {
	k := newMemKeywordIndex(t)

	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("c1", "Configure the database connection pool before deploying.", "docs"),
		testChunk("c2", "The frontend build pipeline compiles assets with webpack.", "docs"),
	}))

	hits, err := k.Search(context.Background(), "database connection", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ID)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.ElementsMatch(t, []string{"database", "connection"}, hits[0].MatchedTerms)
}

func TestKeywordIndex_DocTypeFilter(t *testing.T) {
	k := newMemKeywordIndex(t)

	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("bug1", "Login fails when the session token expires early.", "bugfix"),
		testChunk("doc1", "The login page renders the session banner.", "docs"),
	}))

	hits, err := k.Search(context.Background(), "login session", 10, "bugfix")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bug1", hits[0].ID)
}

func TestKeywordIndex_RebuildReplacesCorpus(t *testing.T) {
	k := newMemKeywordIndex(t)

	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("old", "Text about the legacy billing exporter job.", "docs"),
	}))
	require.Equal(t, 1, k.Count())

	require.NoError(t, k.Rebuild(context.Background(), []chunk.Chunk{
		testChunk("new", "Text about the rewritten billing exporter job.", "docs"),
	}))

	assert.Equal(t, 1, k.Count())
	assert.Equal(t, []string{"new"}, k.AllIDs())

	// Then: the replaced document is gone from search results
	hits, err := k.Search(context.Background(), "legacy billing", 10, "")
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "old", hit.ID)
	}
}

func TestKeywordIndex_Delete(t *testing.T) {
	k := newMemKeywordIndex(t)

	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("a", "Alpha document about caching strategies.", "docs"),
		testChunk("b", "Beta document about caching strategies.", "docs"),
	}))
	require.NoError(t, k.Delete(context.Background(), []string{"a"}))

	assert.Equal(t, 1, k.Count())
	hits, err := k.Search(context.Background(), "caching strategies", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestKeywordIndex_EmptyQueryReturnsNothing(t *testing.T) {
	k := newMemKeywordIndex(t)
	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("a", "Some indexed content to make the corpus non-empty.", "docs"),
	}))

	hits, err := k.Search(context.Background(), "   ", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyword.bleve")

	k, err := NewKeywordIndex(path)
	require.NoError(t, err)
	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("p1", "Persistent document about retry backoff schedules.", "docs"),
	}))
	require.NoError(t, k.Close())

	reopened, err := NewKeywordIndex(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, 1, reopened.Count())
	hits, err := reopened.Search(context.Background(), "retry backoff", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
}

func TestKeywordIndex_StopwordsNotIndexed(t *testing.T) {
	k := newMemKeywordIndex(t)
	require.NoError(t, k.Index(context.Background(), []chunk.Chunk{
		testChunk("a", "The cache is warmed by the background refresher.", "docs"),
	}))

	hits, err := k.Search(context.Background(), "cache refresher", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// "the" and "is" are dropped by the analyzer and never match
	for _, term := range hits[0].MatchedTerms {
		assert.NotContains(t, []string{"the", "is"}, term)
	}
}
