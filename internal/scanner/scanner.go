// Package scanner enumerates indexable documents under a root
// directory.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kbforge/docindex/internal/extract"
)

// Document is one discovered file.
type Document struct {
	// Path is the absolute filesystem path.
	Path string
	// RelPath is the path relative to the scan root, with forward
	// slashes. It is the stable chunk source identifier.
	RelPath string
}

// Scan walks root and returns every supported document, sorted by
// RelPath for deterministic indexing order. Hidden directories are
// skipped, and so is any subtree that embeds an independent git
// repository, to avoid double-indexing nested projects.
func Scan(root string) ([]Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	var docs []Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped, not fatal
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if isNestedRepo(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || !extract.Supported(path) {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		docs = append(docs, Document{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].RelPath < docs[j].RelPath })
	return docs, nil
}

// isNestedRepo reports whether dir is the root of its own git
// repository (a .git directory or gitlink file).
func isNestedRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
