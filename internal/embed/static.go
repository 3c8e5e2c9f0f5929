package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

// StaticEmbedder generates embeddings with a hash-based bag-of-features
// approach. It needs no network or model download, is fully
// deterministic, and trades semantic quality for availability. Used as
// the offline fallback and throughout the test suite.
type StaticEmbedder struct {
	mu     sync.RWMutex
	model  string
	closed bool
}

// Feature weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var staticTokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a static embedder. The model name only
// labels the output (distinct names produce distinct vectors), which
// lets tests exercise model migrations without a real model.
func NewStaticEmbedder(model string) *StaticEmbedder {
	if model == "" {
		model = "static"
	}
	return &StaticEmbedder{model: model}
}

// Embed generates the embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	vector := make([]float32, StaticDimensions)
	for _, token := range staticTokenRegex.FindAllString(strings.ToLower(trimmed), -1) {
		vector[e.hashToIndex(token)] += tokenWeight
	}
	compact := strings.ToLower(strings.Join(strings.Fields(trimmed), " "))
	for i := 0; i+ngramSize <= len(compact); i++ {
		vector[e.hashToIndex(compact[i:i+ngramSize])] += ngramWeight
	}

	return normalizeVector(vector), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return e.model }

// Available always reports true: no external dependency.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// hashToIndex maps a feature to a vector bucket. The model name is
// mixed in so differently-named static models embed into different
// subspaces, mimicking a real model change.
func (e *StaticEmbedder) hashToIndex(feature string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(e.model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(feature))
	return int(h.Sum32() % uint32(StaticDimensions))
}

var _ Embedder = (*StaticEmbedder)(nil)
