package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// ShadowSuffix marks a migration shadow collection. Shadows are
// invisible to searches and swept at startup, so finding one on disk
// can only mean an interrupted migration.
const ShadowSuffix = "_migration"

const (
	collectionsDirName = "collections"
	catalogFileName    = "catalog.db"
	lockFileName       = "docindex.lock"
)

// Store manages named collections under a data directory and holds a
// process-level file lock so two processes never mutate the same
// directory.
type Store struct {
	mu          sync.Mutex
	dataDir     string
	catalog     *Catalog
	lock        *flock.Flock
	collections map[string]*Collection
}

// Open locks dataDir, opens the catalog, and sweeps any leftover
// migration shadows.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	fl := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is locked by another process", dataDir)
	}

	catalog, err := OpenCatalog(filepath.Join(dataDir, catalogFileName))
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	s := &Store{
		dataDir:     dataDir,
		catalog:     catalog,
		lock:        fl,
		collections: make(map[string]*Collection),
	}

	if err := s.sweepShadows(context.Background()); err != nil {
		slog.Warn("shadow collection sweep failed", "error", err)
	}
	return s, nil
}

// DataDir returns the store's root directory.
func (s *Store) DataDir() string { return s.dataDir }

// Catalog exposes the shared chunk catalog.
func (s *Store) Catalog() *Catalog { return s.catalog }

// ShadowName returns the shadow collection name for name.
func ShadowName(name string) string { return name + ShadowSuffix }

// IsShadow reports whether name follows the shadow naming convention.
func IsShadow(name string) bool { return strings.HasSuffix(name, ShadowSuffix) }

func (s *Store) collectionDir(name string) string {
	return filepath.Join(s.dataDir, collectionsDirName, name)
}

// Collection opens (or returns the already-open) collection with the
// given name and vector configuration.
func (s *Store) Collection(name string, cfg VectorConfig) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := openCollection(name, s.collectionDir(name), s.catalog, cfg)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// StoredDimensions reads the vector dimensionality previously
// persisted for name. Returns 0 when the collection has no saved
// vector index yet.
func (s *Store) StoredDimensions(name string) (int, error) {
	return ReadVectorDimensions(filepath.Join(s.collectionDir(name), vectorFileName))
}

// Drop closes and deletes a collection entirely: its directory on
// disk and its catalog rows.
func (s *Store) Drop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked(ctx, name)
}

func (s *Store) dropLocked(ctx context.Context, name string) error {
	if col, ok := s.collections[name]; ok {
		if err := col.Close(); err != nil {
			slog.Warn("closing collection before drop", "collection", name, "error", err)
		}
		delete(s.collections, name)
	}
	if err := os.RemoveAll(s.collectionDir(name)); err != nil {
		return fmt.Errorf("remove collection directory: %w", err)
	}
	if err := s.catalog.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("drop catalog rows: %w", err)
	}
	return nil
}

// Promote replaces primary with the shadow collection's contents.
// The caller must hold the index lock so promotion is mutually
// exclusive with reindexing. Both collections are closed, the primary
// directory is replaced by the shadow's, catalog rows move over, and
// the new primary is reopened with cfg.
func (s *Store) Promote(ctx context.Context, primary string, cfg VectorConfig) (*Collection, error) {
	shadow := ShadowName(primary)

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[shadow]; ok {
		if err := col.Save(); err != nil {
			return nil, fmt.Errorf("save shadow before promotion: %w", err)
		}
		if err := col.Close(); err != nil {
			return nil, fmt.Errorf("close shadow before promotion: %w", err)
		}
		delete(s.collections, shadow)
	}
	if col, ok := s.collections[primary]; ok {
		if err := col.Close(); err != nil {
			slog.Warn("closing old primary during promotion", "collection", primary, "error", err)
		}
		delete(s.collections, primary)
	}

	primaryDir := s.collectionDir(primary)
	shadowDir := s.collectionDir(shadow)

	if err := os.RemoveAll(primaryDir); err != nil {
		return nil, fmt.Errorf("remove old primary directory: %w", err)
	}
	if err := os.Rename(shadowDir, primaryDir); err != nil {
		return nil, fmt.Errorf("promote shadow directory: %w", err)
	}
	if err := s.catalog.RenameCollection(ctx, shadow, primary); err != nil {
		return nil, fmt.Errorf("promote catalog rows: %w", err)
	}

	col, err := openCollection(primary, primaryDir, s.catalog, cfg)
	if err != nil {
		return nil, fmt.Errorf("reopen promoted collection: %w", err)
	}
	s.collections[primary] = col
	return col, nil
}

// sweepShadows deletes every shadow collection found on disk or in
// the catalog.
func (s *Store) sweepShadows(ctx context.Context) error {
	colRoot := filepath.Join(s.dataDir, collectionsDirName)
	entries, err := os.ReadDir(colRoot)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read collections directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && IsShadow(entry.Name()) {
			slog.Warn("removing leftover migration shadow", "collection", entry.Name())
			if err := os.RemoveAll(filepath.Join(colRoot, entry.Name())); err != nil {
				return fmt.Errorf("remove shadow directory %s: %w", entry.Name(), err)
			}
		}
	}

	names, err := s.catalog.Collections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if IsShadow(name) {
			slog.Warn("removing leftover shadow catalog rows", "collection", name)
			if err := s.catalog.DropCollection(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close saves and closes every open collection, the catalog, and
// releases the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, col := range s.collections {
		if err := col.Save(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("save collection %s: %w", name, err)
		}
		if err := col.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close collection %s: %w", name, err)
		}
	}
	s.collections = make(map[string]*Collection)

	if err := s.catalog.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close catalog: %w", err)
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("release directory lock: %w", err)
	}
	return firstErr
}
