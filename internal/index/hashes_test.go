package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStore_LoadMissingReturnsEmpty(t *testing.T) {
	h := newHashStore(t.TempDir())

	record, err := h.Load("docs")
	require.NoError(t, err)
	assert.Empty(t, record)
}

func TestHashStore_SaveLoadRoundtrip(t *testing.T) {
	h := newHashStore(t.TempDir())

	record := FileHashRecord{
		"guides/a.md": ContentHash("content a"),
		"guides/b.md": ContentHash("content b"),
	}
	require.NoError(t, h.Save("docs", record))

	loaded, err := h.Load("docs")
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestHashStore_CollectionsAreSeparate(t *testing.T) {
	h := newHashStore(t.TempDir())

	require.NoError(t, h.Save("docs", FileHashRecord{"a.md": "h1"}))
	require.NoError(t, h.Save("other", FileHashRecord{"b.md": "h2"}))

	docs, err := h.Load("docs")
	require.NoError(t, err)
	assert.Equal(t, FileHashRecord{"a.md": "h1"}, docs)
}

func TestHashStore_Invalidate(t *testing.T) {
	h := newHashStore(t.TempDir())

	require.NoError(t, h.Save("docs", FileHashRecord{"a.md": "h1"}))
	require.NoError(t, h.Invalidate("docs"))

	record, err := h.Load("docs")
	require.NoError(t, err)
	assert.Empty(t, record)

	// Invalidating an absent record is not an error
	assert.NoError(t, h.Invalidate("docs"))
}

func TestContentHash_Deterministic(t *testing.T) {
	assert.Equal(t, ContentHash("same"), ContentHash("same"))
	assert.NotEqual(t, ContentHash("one"), ContentHash("two"))
	assert.Len(t, ContentHash("x"), 64)
}
