package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kbforge/docindex/internal/chunk"
)

const (
	vectorFileName = "vectors.hnsw"
	keywordDirName = "keyword.bleve"
)

// Collection bundles the three persistence layers for one named chunk
// corpus: the HNSW vector index, the bleve keyword index, and the
// shared SQLite catalog.
type Collection struct {
	name    string
	dir     string
	vector  *VectorIndex
	keyword *KeywordIndex
	catalog *Catalog
}

// openCollection opens or creates a collection rooted at dir.
func openCollection(name, dir string, catalog *Catalog, cfg VectorConfig) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection directory: %w", err)
	}

	vectorPath := filepath.Join(dir, vectorFileName)
	vector, err := NewVectorIndex(cfg)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vector.Load(vectorPath); err != nil {
			return nil, fmt.Errorf("load vector index for %s: %w", name, err)
		}
	}

	keyword, err := NewKeywordIndex(filepath.Join(dir, keywordDirName))
	if err != nil {
		vector.Close()
		return nil, fmt.Errorf("open keyword index for %s: %w", name, err)
	}

	return &Collection{
		name:    name,
		dir:     dir,
		vector:  vector,
		keyword: keyword,
		catalog: catalog,
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dimensions returns the vector index dimensionality.
func (c *Collection) Dimensions() int { return c.vector.Dimensions() }

// Upsert writes chunks with their embeddings to all three layers.
func (c *Collection) Upsert(ctx context.Context, chunks []chunk.Chunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks and embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	if err := c.catalog.Upsert(ctx, c.name, chunks, embeddings); err != nil {
		return fmt.Errorf("catalog upsert: %w", err)
	}

	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := c.vector.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	if err := c.keyword.Index(ctx, chunks); err != nil {
		return fmt.Errorf("keyword upsert: %w", err)
	}
	return nil
}

// Delete removes chunks by ID from all three layers.
func (c *Collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.vector.Delete(ctx, ids); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	if err := c.keyword.Delete(ctx, ids); err != nil {
		return fmt.Errorf("keyword delete: %w", err)
	}
	if err := c.catalog.Delete(ctx, c.name, ids); err != nil {
		return fmt.Errorf("catalog delete: %w", err)
	}
	return nil
}

// SearchVector returns the k nearest chunks to the query embedding.
func (c *Collection) SearchVector(ctx context.Context, query []float32, k int) ([]VectorHit, error) {
	return c.vector.Search(ctx, query, k)
}

// SearchKeyword returns up to limit BM25 hits for the query text.
func (c *Collection) SearchKeyword(ctx context.Context, query string, limit int, docType string) ([]KeywordHit, error) {
	return c.keyword.Search(ctx, query, limit, docType)
}

// RebuildKeyword replaces the keyword corpus wholesale.
func (c *Collection) RebuildKeyword(ctx context.Context, chunks []chunk.Chunk) error {
	return c.keyword.Rebuild(ctx, chunks)
}

// KeywordCount returns the keyword corpus size.
func (c *Collection) KeywordCount() int { return c.keyword.Count() }

// Get fetches stored chunks by ID.
func (c *Collection) Get(ctx context.Context, ids []string) (map[string]StoredChunk, error) {
	return c.catalog.Get(ctx, c.name, ids)
}

// All streams every stored chunk in batches.
func (c *Collection) All(ctx context.Context, batchSize int, fn func([]StoredChunk) error) error {
	return c.catalog.All(ctx, c.name, batchSize, fn)
}

// AllIDs returns every live chunk ID in the vector index.
func (c *Collection) AllIDs() []string {
	return c.vector.AllIDs()
}

// Count returns the number of live chunks.
func (c *Collection) Count() int {
	return c.vector.Count()
}

// TypeDistribution returns doc_type -> chunk count.
func (c *Collection) TypeDistribution(ctx context.Context) (map[string]int, error) {
	return c.catalog.TypeDistribution(ctx, c.name)
}

// Save persists the vector index. The keyword index and catalog
// persist their writes as they happen.
func (c *Collection) Save() error {
	return c.vector.Save(filepath.Join(c.dir, vectorFileName))
}

// Clear empties the collection in place.
func (c *Collection) Clear(ctx context.Context) error {
	ids := c.vector.AllIDs()
	if err := c.vector.Delete(ctx, ids); err != nil {
		return fmt.Errorf("clear vector index: %w", err)
	}
	if err := c.keyword.Rebuild(ctx, nil); err != nil {
		return fmt.Errorf("clear keyword index: %w", err)
	}
	if err := c.catalog.DropCollection(ctx, c.name); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	return nil
}

// Close closes the in-memory and file-backed layers. The shared
// catalog stays open; the Store owns it.
func (c *Collection) Close() error {
	vErr := c.vector.Close()
	kErr := c.keyword.Close()
	if vErr != nil {
		return vErr
	}
	return kErr
}
