package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbforge/docindex/internal/chunk"
	"github.com/kbforge/docindex/internal/config"
	"github.com/kbforge/docindex/internal/embed"
	"github.com/kbforge/docindex/internal/quality"
	"github.com/kbforge/docindex/internal/scanner"
	"github.com/kbforge/docindex/internal/store"
)

// Migration states. Running is the only non-terminal state.
const (
	MigrationRunning   = "running"
	MigrationComplete  = "complete"
	MigrationFailed    = "failed"
	MigrationCancelled = "cancelled"
	MigrationSkipped   = "skipped"
)

// Migration is the observable record of one embedding-model swap.
type Migration struct {
	ID            string    `json:"id"`
	FromModel     string    `json:"from_model"`
	ToModel       string    `json:"to_model"`
	Status        string    `json:"status"`
	FilesTotal    int       `json:"files_total"`
	FilesDone     int       `json:"files_done"`
	ChunksCreated int       `json:"chunks_created"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
}

// Migrator coordinates live embedding-model swaps: it re-embeds the
// corpus into an invisible shadow collection while searches keep
// hitting the primary, then promotes atomically. Its state lock is
// distinct from the index lock, which it only takes for the final
// promotion step.
type Migrator struct {
	ix *Indexer

	mu      sync.Mutex
	current *Migration
}

// NewMigrator creates a migrator bound to ix.
func NewMigrator(ix *Indexer) *Migrator {
	return &Migrator{ix: ix}
}

// Start begins a migration to the embedding configuration in newCfg
// and returns immediately with a pollable handle. Identical old and
// new model identities return a skipped no-op. A second Start while
// one migration is running is rejected with no side effects.
func (m *Migrator) Start(ctx context.Context, newCfg *config.Config) (*Migration, error) {
	fromModel := m.ix.ModelIdentity()
	toModel := newCfg.ModelIdentity()
	if fromModel == toModel {
		return &Migration{
			ID:        uuid.NewString(),
			FromModel: fromModel,
			ToModel:   toModel,
			Status:    MigrationSkipped,
			StartedAt: time.Now(),
		}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Status == MigrationRunning {
		return nil, fmt.Errorf("migration %s already in progress", m.current.ID)
	}

	newEmbedder, err := embed.New(ctx, newCfg)
	if err != nil {
		return nil, fmt.Errorf("create embedder for new model: %w", err)
	}

	shadowName := store.ShadowName(m.ix.name)
	// Purge any pre-existing leftover before building a fresh shadow.
	if err := m.ix.store.Drop(ctx, shadowName); err != nil {
		newEmbedder.Close()
		return nil, fmt.Errorf("purge leftover shadow collection: %w", err)
	}
	shadow, err := m.ix.store.Collection(shadowName, store.VectorConfig{
		Dimensions: newEmbedder.Dimensions(),
		Metric:     "cos",
	})
	if err != nil {
		newEmbedder.Close()
		return nil, fmt.Errorf("create shadow collection: %w", err)
	}

	mig := &Migration{
		ID:        uuid.NewString(),
		FromModel: fromModel,
		ToModel:   toModel,
		Status:    MigrationRunning,
		StartedAt: time.Now(),
	}
	m.current = mig

	slog.Info("model migration started",
		"migration_id", mig.ID, "from", fromModel, "to", toModel)
	go m.run(mig, shadow, newEmbedder, toModel)

	snapshot := *mig
	return &snapshot, nil
}

// Cancel requests cancellation of the running migration. The worker
// observes the flag at its next per-document check, deletes the
// shadow, and exits without touching the primary.
func (m *Migrator) Cancel() (*Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.Status != MigrationRunning {
		return nil, fmt.Errorf("no migration is running")
	}
	m.current.Status = MigrationCancelled
	slog.Info("model migration cancellation requested", "migration_id", m.current.ID)

	snapshot := *m.current
	return &snapshot, nil
}

// Status returns a snapshot of the most recent migration, or nil if
// none has been started.
func (m *Migrator) Status() *Migration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	return &snapshot
}

// run is the migration worker. It uses a background context: the
// caller's request context ends with the Start call, but the worker
// outlives it, bounded instead by the polled cancellation flag.
func (m *Migrator) run(mig *Migration, shadow *store.Collection, newEmbedder embed.Embedder, toModel string) {
	ctx := context.Background()

	docs, err := scanner.Scan(m.ix.cfg.DocsPath)
	if err != nil {
		m.fail(ctx, mig, shadow, newEmbedder, fmt.Errorf("scan documents: %w", err))
		return
	}
	m.update(func() { mig.FilesTotal = len(docs) })

	opts := chunk.Options{
		Strategy: m.ix.cfg.Chunking.Strategy,
		MaxChars: m.ix.cfg.Chunking.MaxChars,
		Overlap:  m.ix.cfg.Chunking.Overlap,
	}

	for _, doc := range docs {
		if m.cancelled(mig) {
			m.cleanupCancelled(ctx, mig, shadow, newEmbedder)
			return
		}

		text, ok := m.ix.extractor.Extract(doc.Path)
		if !ok {
			continue
		}
		if m.ix.gate != nil {
			if issues := m.ix.gate.CheckFile(doc.Path, doc.RelPath); quality.HasCritical(issues) {
				continue
			}
		}

		chunks := dedupeChunks(chunk.Split(text, doc.RelPath, opts))
		if len(chunks) > 0 {
			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Text
			}
			vectors, err := newEmbedder.EmbedBatch(ctx, texts)
			if err != nil {
				m.fail(ctx, mig, shadow, newEmbedder, fmt.Errorf("embed %s: %w", doc.RelPath, err))
				return
			}
			if err := shadow.Upsert(ctx, chunks, vectors); err != nil {
				m.fail(ctx, mig, shadow, newEmbedder, fmt.Errorf("upsert %s into shadow: %w", doc.RelPath, err))
				return
			}
		}

		m.update(func() {
			mig.FilesDone++
			mig.ChunksCreated += len(chunks)
		})
	}

	if m.cancelled(mig) {
		m.cleanupCancelled(ctx, mig, shadow, newEmbedder)
		return
	}

	// Promotion is the only step that touches the primary, and it
	// runs under the index lock, mutually exclusive with reindexing.
	if err := m.ix.promoteShadow(ctx, newEmbedder, toModel); err != nil {
		m.fail(ctx, mig, shadow, newEmbedder, fmt.Errorf("promote shadow collection: %w", err))
		return
	}

	m.update(func() {
		mig.Status = MigrationComplete
		mig.CompletedAt = time.Now()
	})
	slog.Info("model migration complete",
		"migration_id", mig.ID,
		"files_done", mig.FilesDone,
		"chunks_created", mig.ChunksCreated)
}

func (m *Migrator) cancelled(mig *Migration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mig.Status == MigrationCancelled
}

func (m *Migrator) update(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

func (m *Migrator) cleanupCancelled(ctx context.Context, mig *Migration, shadow *store.Collection, newEmbedder embed.Embedder) {
	newEmbedder.Close()
	if err := m.ix.store.Drop(ctx, shadow.Name()); err != nil {
		slog.Warn("dropping shadow collection after cancellation", "error", err)
	}
	m.update(func() { mig.CompletedAt = time.Now() })
	slog.Info("model migration cancelled", "migration_id", mig.ID, "files_done", mig.FilesDone)
}

func (m *Migrator) fail(ctx context.Context, mig *Migration, shadow *store.Collection, newEmbedder embed.Embedder, cause error) {
	newEmbedder.Close()
	if err := m.ix.store.Drop(ctx, shadow.Name()); err != nil {
		slog.Warn("dropping shadow collection after failure", "error", err)
	}
	m.update(func() {
		mig.Status = MigrationFailed
		mig.Error = cause.Error()
		mig.CompletedAt = time.Now()
	})
	slog.Error("model migration failed", "migration_id", mig.ID, "error", cause)
}
