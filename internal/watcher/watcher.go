// Package watcher triggers debounced reindex passes when the document
// tree changes on disk.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kbforge/docindex/internal/extract"
	"github.com/kbforge/docindex/internal/index"
)

// DefaultDebounce batches bursts of filesystem events (editor saves,
// git checkouts) into one index pass.
const DefaultDebounce = 2 * time.Second

// Watcher observes a document tree and reindexes after changes
// settle. The diff-aware pipeline makes the triggered pass cheap:
// unchanged files cost one hash comparison each.
type Watcher struct {
	root     string
	ix       *index.Indexer
	debounce time.Duration
}

// New creates a watcher over root driving ix.
func New(root string, ix *index.Indexer, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, ix: ix, debounce: debounce}
}

// Run blocks, watching for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}
	slog.Info("watching for document changes", "root", w.root, "debounce", w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// New directories must be registered before their
			// contents produce events.
			if event.Op.Has(fsnotify.Create) {
				if err := w.addRecursive(fsw, event.Name); err != nil {
					slog.Debug("could not watch new path", "path", event.Name, "error", err)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("filesystem watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := w.ix.IndexAll(ctx, false); err != nil {
				slog.Error("watch-triggered index pass failed", "error", err)
			}
		}
	}
}

// relevant filters events down to supported documents and directory
// structure changes.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	if extract.Supported(event.Name) {
		return true
	}
	// Directory events carry no extension; structure changes matter.
	return filepath.Ext(event.Name) == ""
}

// addRecursive registers path and every non-hidden directory below
// it. Files are covered by their parent directory's watch.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			slog.Debug("could not watch directory", "path", p, "error", err)
		}
		return nil
	})
}
