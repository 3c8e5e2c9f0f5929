package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
}

func relPaths(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.RelPath
	}
	return out
}

func TestScan_FindsSupportedFilesSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zeta.md")
	writeFile(t, root, "alpha.md")
	writeFile(t, root, "guides/deep/nested.txt")
	writeFile(t, root, "data/export.csv")

	docs, err := Scan(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"alpha.md",
		"data/export.csv",
		"guides/deep/nested.txt",
		"zeta.md",
	}, relPaths(docs))

	// And: absolute paths point at the real files
	for _, d := range docs {
		_, statErr := os.Stat(d.Path)
		assert.NoError(t, statErr)
	}
}

func TestScan_SkipsUnsupportedAndHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md")
	writeFile(t, root, "binary.png")
	writeFile(t, root, ".hidden.md")
	writeFile(t, root, ".git/config.md")
	writeFile(t, root, ".obsidian/workspace.json")

	docs, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.md"}, relPaths(docs))
}

func TestScan_SkipsNestedRepositories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "top.md")
	writeFile(t, root, "vendor-project/readme.md")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor-project", ".git"), 0o755))

	docs, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"top.md"}, relPaths(docs))
}

func TestScan_RootWithGitIsNotSkipped(t *testing.T) {
	// The scan root itself being a repository is fine; only embedded
	// repositories below it are excluded.
	root := t.TempDir()
	writeFile(t, root, "doc.md")
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	docs, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.md"}, relPaths(docs))
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestScan_RootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.md")

	_, err := Scan(filepath.Join(root, "file.md"))
	assert.Error(t, err)
}

func TestScan_EmptyRoot(t *testing.T) {
	docs, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
