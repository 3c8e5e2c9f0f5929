// Package index implements the diff-aware indexing pipeline tying the
// scanner, extractor, chunker, embedder, and stores together.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbforge/docindex/internal/chunk"
	"github.com/kbforge/docindex/internal/config"
	"github.com/kbforge/docindex/internal/embed"
	"github.com/kbforge/docindex/internal/extract"
	"github.com/kbforge/docindex/internal/quality"
	"github.com/kbforge/docindex/internal/scanner"
	"github.com/kbforge/docindex/internal/search"
	"github.com/kbforge/docindex/internal/store"
)

// DefaultCollection is the primary collection name.
const DefaultCollection = "docs"

// batchSize bounds a single upsert or delete against the stores.
const batchSize = 5000

// IndexResult summarizes one index_all pass.
type IndexResult struct {
	FilesIndexed   int           `json:"files_indexed"`
	FilesChanged   int           `json:"files_changed"`
	FilesSkipped   int           `json:"files_skipped"`
	QualitySkipped []string      `json:"quality_skipped,omitempty"`
	ChunksUpserted int           `json:"chunks_upserted"`
	ChunksTotal    int           `json:"chunks_total"`
	ChunksRemoved  int           `json:"chunks_removed"`
	Duration       time.Duration `json:"duration"`
}

// Stats is the snapshot returned by Indexer.Stats.
type Stats struct {
	TotalChunks      int            `json:"total_chunks"`
	KeywordChunks    int            `json:"keyword_chunks"`
	TypeDistribution map[string]int `json:"type_distribution"`
	EmbeddingModel   string         `json:"embedding_model"`
	ChunkStrategy    string         `json:"chunk_strategy"`
}

// binding is the search-visible state: which collection and embedder
// serve reads. Swapped atomically under the index lock during
// migration promotion, so lock-free searches never see a torn pair.
type binding struct {
	collection *store.Collection
	embedder   embed.Embedder
	model      string
}

// Indexer owns the primary collection and serializes structural
// writes through the index lock. Searches take no lock.
type Indexer struct {
	mu        sync.Mutex // index lock: index passes, clear, promotion
	cfg       *config.Config
	store     *store.Store
	extractor extract.Extractor
	gate      quality.Gate // nil disables the quality gate
	engine    *search.Engine
	hashes    *hashStore
	name      string

	binding atomic.Pointer[binding]
}

// New opens the primary collection and wires the pipeline. When the
// stored vector dimensionality disagrees with the embedder (a model
// was changed outside a proper migration), the collection is dropped
// and rebuilt from scratch on the next index pass.
func New(cfg *config.Config, st *store.Store, embedder embed.Embedder, extractor extract.Extractor, gate quality.Gate, engine *search.Engine) (*Indexer, error) {
	ix := &Indexer{
		cfg:       cfg,
		store:     st,
		extractor: extractor,
		gate:      gate,
		engine:    engine,
		hashes:    newHashStore(st.DataDir()),
		name:      DefaultCollection,
	}

	storedDims, err := st.StoredDimensions(ix.name)
	if err != nil {
		return nil, err
	}
	if storedDims != 0 && storedDims != embedder.Dimensions() {
		slog.Warn("stored vector dimensions disagree with embedder, rebuilding collection",
			"stored", storedDims, "embedder", embedder.Dimensions())
		if err := st.Drop(context.Background(), ix.name); err != nil {
			return nil, fmt.Errorf("drop mismatched collection: %w", err)
		}
		if err := ix.hashes.Invalidate(ix.name); err != nil {
			return nil, err
		}
	}

	col, err := st.Collection(ix.name, store.VectorConfig{
		Dimensions: embedder.Dimensions(),
		Metric:     "cos",
	})
	if err != nil {
		return nil, err
	}

	ix.binding.Store(&binding{
		collection: col,
		embedder:   embedder,
		model:      cfg.ModelIdentity(),
	})
	return ix, nil
}

// Collection returns the currently bound primary collection.
func (ix *Indexer) Collection() *store.Collection { return ix.binding.Load().collection }

// Embedder returns the currently bound embedder.
func (ix *Indexer) Embedder() embed.Embedder { return ix.binding.Load().embedder }

// ModelIdentity returns the provider/model identity currently serving
// the index.
func (ix *Indexer) ModelIdentity() string { return ix.binding.Load().model }

// IndexAll runs a full diff-aware pass over the document tree.
func (ix *Indexer) IndexAll(ctx context.Context, force bool) (*IndexResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	b := ix.binding.Load()

	docs, err := scanner.Scan(ix.cfg.DocsPath)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}

	oldHashes, err := ix.hashes.Load(ix.name)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for _, id := range b.collection.AllIDs() {
		existing[id] = true
	}

	// An empty collection forces a full pass regardless of a stale
	// hash cache, so a fresh or restored store is never left
	// under-populated.
	forceAll := force || len(existing) == 0

	result := &IndexResult{}
	newHashes := FileHashRecord{}
	var fullCandidates, changed []chunk.Chunk

	opts := chunk.Options{
		Strategy: ix.cfg.Chunking.Strategy,
		MaxChars: ix.cfg.Chunking.MaxChars,
		Overlap:  ix.cfg.Chunking.Overlap,
	}

	for _, doc := range docs {
		text, ok := ix.extractor.Extract(doc.Path)
		if !ok {
			result.FilesSkipped++
			continue
		}
		if ix.gate != nil {
			if issues := ix.gate.CheckFile(doc.Path, doc.RelPath); quality.HasCritical(issues) {
				slog.Warn("skipping file with critical quality issues", "path", doc.RelPath)
				result.QualitySkipped = append(result.QualitySkipped, doc.RelPath)
				continue
			}
		}

		hash := ContentHash(text)
		newHashes[doc.RelPath] = hash

		chunks := chunk.Split(text, doc.RelPath, opts)
		fullCandidates = append(fullCandidates, chunks...)

		result.FilesIndexed++
		if forceAll || oldHashes[doc.RelPath] != hash {
			changed = append(changed, chunks...)
			result.FilesChanged++
		}
	}

	// A chunking pass may legitimately emit the same id twice; last
	// occurrence wins.
	fullCandidates = dedupeChunks(fullCandidates)
	changed = dedupeChunks(changed)

	if err := ix.upsertBatches(ctx, b, changed); err != nil {
		return nil, err
	}
	result.ChunksUpserted = len(changed)

	candidateIDs := make(map[string]bool, len(fullCandidates))
	for _, c := range fullCandidates {
		candidateIDs[c.ID] = true
	}
	var stale []string
	for id := range existing {
		if !candidateIDs[id] {
			stale = append(stale, id)
		}
	}

	// Zero files on disk with a populated collection smells like an
	// unmounted volume or a clone that has not finished, not a
	// deliberately emptied corpus. Keep everything: chunks, keyword
	// corpus, and the hash baseline.
	emptyScanGuard := len(docs) == 0 && len(existing) > 0

	if emptyScanGuard {
		slog.Warn("no documents found on disk, skipping stale chunk deletion",
			"existing_chunks", len(existing))
	} else if len(stale) > 0 {
		for start := 0; start < len(stale); start += batchSize {
			end := min(start+batchSize, len(stale))
			if err := b.collection.Delete(ctx, stale[start:end]); err != nil {
				return nil, fmt.Errorf("delete stale chunks: %w", err)
			}
		}
		result.ChunksRemoved = len(stale)
	}

	// Commit the hash baseline only when the store verifiably holds
	// data; otherwise keep the old baseline so the next pass retries
	// the write.
	actualCount := b.collection.Count()
	if emptyScanGuard {
		// keep the previous baseline untouched
	} else if actualCount > 0 || len(fullCandidates) == 0 {
		if err := ix.hashes.Save(ix.name, newHashes); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("store reports zero chunks after write, withholding hash commit",
			"expected", len(fullCandidates))
	}

	if !emptyScanGuard {
		if err := b.collection.RebuildKeyword(ctx, fullCandidates); err != nil {
			return nil, fmt.Errorf("rebuild keyword index: %w", err)
		}
	}
	if err := b.collection.Save(); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}

	result.ChunksTotal = len(fullCandidates)
	result.Duration = time.Since(start)
	slog.Info("index pass complete",
		"files_indexed", result.FilesIndexed,
		"files_changed", result.FilesChanged,
		"files_skipped", result.FilesSkipped,
		"chunks_upserted", result.ChunksUpserted,
		"chunks_removed", result.ChunksRemoved,
		"chunks_total", result.ChunksTotal,
		"duration", result.Duration)
	return result, nil
}

// IndexSingle chunks and upserts one document, updating its hash
// baseline entry. Returns the number of chunks written.
func (ix *Indexer) IndexSingle(ctx context.Context, path, text string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b := ix.binding.Load()

	rel, err := filepath.Rel(ix.cfg.DocsPath, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	chunks := dedupeChunks(chunk.Split(text, rel, chunk.Options{
		Strategy: ix.cfg.Chunking.Strategy,
		MaxChars: ix.cfg.Chunking.MaxChars,
		Overlap:  ix.cfg.Chunking.Overlap,
	}))

	if err := ix.upsertBatches(ctx, b, chunks); err != nil {
		return 0, err
	}

	record, err := ix.hashes.Load(ix.name)
	if err != nil {
		return 0, err
	}
	record[rel] = ContentHash(text)
	if err := ix.hashes.Save(ix.name, record); err != nil {
		return 0, err
	}

	if err := b.collection.Save(); err != nil {
		return 0, fmt.Errorf("save collection: %w", err)
	}
	return len(chunks), nil
}

// ClearIndex empties the primary collection and drops the hash
// baseline.
func (ix *Indexer) ClearIndex(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b := ix.binding.Load()
	if err := b.collection.Clear(ctx); err != nil {
		return err
	}
	if err := ix.hashes.Invalidate(ix.name); err != nil {
		return err
	}
	return b.collection.Save()
}

// Search runs hybrid retrieval against the currently bound
// collection. No lock: the binding pointer is swapped atomically, so
// a search in flight during promotion completes against whichever
// collection was bound at call time.
func (ix *Indexer) Search(ctx context.Context, query string, opts search.Options) ([]search.ScoredChunk, error) {
	b := ix.binding.Load()
	return ix.engine.Search(ctx, b.collection, b.embedder, query, opts)
}

// Stats reports the current index shape.
func (ix *Indexer) Stats(ctx context.Context) (*Stats, error) {
	b := ix.binding.Load()
	dist, err := b.collection.TypeDistribution(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalChunks:      b.collection.Count(),
		KeywordChunks:    b.collection.KeywordCount(),
		TypeDistribution: dist,
		EmbeddingModel:   b.model,
		ChunkStrategy:    ix.cfg.Chunking.Strategy,
	}, nil
}

// promoteShadow swaps the shadow collection in as the new primary
// under the index lock and invalidates the hash baseline. Called by
// the migration manager on successful completion.
func (ix *Indexer) promoteShadow(ctx context.Context, newEmbedder embed.Embedder, newModel string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, err := ix.store.Promote(ctx, ix.name, store.VectorConfig{
		Dimensions: newEmbedder.Dimensions(),
		Metric:     "cos",
	})
	if err != nil {
		return err
	}

	ix.binding.Store(&binding{
		collection: col,
		embedder:   newEmbedder,
		model:      newModel,
	})
	return ix.hashes.Invalidate(ix.name)
}

func (ix *Indexer) upsertBatches(ctx context.Context, b *binding, chunks []chunk.Chunk) error {
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if err := b.collection.Upsert(ctx, batch, vectors); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

// dedupeChunks keeps the last occurrence per chunk ID, preserving
// first-seen order.
func dedupeChunks(chunks []chunk.Chunk) []chunk.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	pos := make(map[string]int, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		if i, seen := pos[c.ID]; seen {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
