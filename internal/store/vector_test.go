package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorIndex(t *testing.T, dims int) *VectorIndex {
	t.Helper()
	v, err := NewVectorIndex(VectorConfig{Dimensions: dims, Metric: "cos"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestVectorIndex_AddAndSearch(t *testing.T) {
	v := newTestVectorIndex(t, 4)

	// Given: vectors a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	err := v.Add(context.Background(),
		[]string{"a", "b", "c"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0.9, 0.1, 0, 0}})
	require.NoError(t, err)

	// When: searching for [1,0,0,0] with k=2
	hits, err := v.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: a (exact) then c (near)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.Greater(t, hits[0].Score, float32(0.99))
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestVectorIndex_DeleteIsLazy(t *testing.T) {
	v := newTestVectorIndex(t, 4)

	require.NoError(t, v.Add(context.Background(),
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	require.NoError(t, v.Delete(context.Background(), []string{"a"}))

	assert.False(t, v.Contains("a"))
	assert.True(t, v.Contains("b"))
	assert.Equal(t, 1, v.Count())

	// Then: the orphaned node never surfaces in results
	hits, err := v.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestVectorIndex_ReAddReplacesVector(t *testing.T) {
	v := newTestVectorIndex(t, 4)

	require.NoError(t, v.Add(context.Background(),
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	// When: "a" is re-added pointing elsewhere
	require.NoError(t, v.Add(context.Background(),
		[]string{"a"},
		[][]float32{{0, 0, 1, 0}}))

	assert.Equal(t, 2, v.Count())

	hits, err := v.Search(context.Background(), []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.Greater(t, hits[0].Score, float32(0.99))
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	v := newTestVectorIndex(t, 4)

	err := v.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)

	_, err = v.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorAs(t, err, &mismatch)
}

func TestVectorIndex_SearchEmpty(t *testing.T) {
	v := newTestVectorIndex(t, 4)

	hits, err := v.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	v := newTestVectorIndex(t, 4)
	require.NoError(t, v.Add(context.Background(),
		[]string{"a", "b", "c"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}))
	require.NoError(t, v.Delete(context.Background(), []string{"c"}))
	require.NoError(t, v.Save(path))

	// When: a fresh index loads the saved state
	loaded, err := NewVectorIndex(VectorConfig{Dimensions: 4, Metric: "cos"})
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("a"))
	assert.False(t, loaded.Contains("c"))

	hits, err := loaded.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)

	// And: the sidecar records the dimensionality
	dims, err := ReadVectorDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)
}

func TestReadVectorDimensions_MissingIndex(t *testing.T) {
	dims, err := ReadVectorDimensions(filepath.Join(t.TempDir(), "absent.hnsw"))
	require.NoError(t, err)
	assert.Zero(t, dims)
}

func TestVectorIndex_ClosedOperationsFail(t *testing.T) {
	v, err := NewVectorIndex(VectorConfig{Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, v.Close())

	assert.Error(t, v.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	_, err = v.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)
	assert.Zero(t, v.Count())
	assert.NoError(t, v.Close())
}
