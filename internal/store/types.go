package store

import (
	"fmt"

	"github.com/kbforge/docindex/internal/chunk"
)

// VectorConfig configures an HNSW vector index.
type VectorConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// VectorHit is a single nearest-neighbor result.
type VectorHit struct {
	ID       string
	Distance float32
	Score    float32
}

// KeywordHit is a single BM25 result.
type KeywordHit struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// StoredChunk is a catalog row: the chunk plus its embedding.
type StoredChunk struct {
	Chunk     chunk.Chunk
	Embedding []float32
}

// ErrDimensionMismatch is returned when a vector's dimensionality does
// not match the index it is being added to or searched against.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
