package search

import "github.com/kbforge/docindex/internal/chunk"

// ScoredChunk is a search hit with its final relevance on a 0-100
// scale.
type ScoredChunk struct {
	Chunk        chunk.Chunk `json:"chunk"`
	Relevance    float64     `json:"relevance"`
	FusedScore   float64     `json:"fused_score"`
	MatchedTerms []string    `json:"matched_terms,omitempty"`
	Sources      []string    `json:"sources"`
}

// Result sources reported per hit.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// Options controls one search invocation. An empty RerankModel uses
// the engine's configured default.
type Options struct {
	TopK         int
	TypeFilter   string
	MinRelevance float64
	RerankModel  string
}
