// Package extract reads heterogeneous document formats and converts
// them into markdown-like text for the chunking pipeline.
package extract

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the file extensions the extractor handles.
var SupportedExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
}

// Supported reports whether path has an extractable extension.
func Supported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extractor turns a document file into indexable text. Extraction is
// best-effort: failures are logged and reported as not-ok, never as
// errors, so one unreadable file cannot stop an index pass.
type Extractor interface {
	Extract(path string) (string, bool)
}

// FileExtractor is the default Extractor over the local filesystem.
type FileExtractor struct{}

// New returns a FileExtractor.
func New() *FileExtractor { return &FileExtractor{} }

// Extract reads path and returns markdown-like text. Returns false
// for unsupported extensions or unreadable files.
func (e *FileExtractor) Extract(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return "", false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("could not read document", "path", path, "error", err)
		return "", false
	}
	content := string(raw)
	name := filepath.Base(path)

	switch ext {
	case ".md":
		return content, true
	case ".txt":
		return fmt.Sprintf("# %s\n\n%s", name, content), true
	case ".json":
		return renderJSON(name, content), true
	case ".yaml", ".yml":
		return fmt.Sprintf("# %s\n\n```yaml\n%s\n```", name, content), true
	case ".csv":
		return renderCSV(name, content), true
	}
	return "", false
}

// renderJSON pretty-prints valid JSON inside a fenced block; invalid
// JSON is indexed as-is rather than dropped.
func renderJSON(name, content string) string {
	var parsed any
	formatted := content
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			formatted = string(pretty)
		}
	}
	return fmt.Sprintf("# %s\n\n```json\n%s\n```", name, formatted)
}

// renderCSV converts rows into a markdown table, treating the first
// row as the header.
func renderCSV(name, content string) string {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil || len(rows) == 0 {
		if err != nil {
			slog.Warn("could not parse csv, indexing raw text", "file", name, "error", err)
			return fmt.Sprintf("# %s\n\n%s", name, content)
		}
		return fmt.Sprintf("# %s\n\n(empty)", name)
	}

	header := rows[0]
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	for _, row := range rows[1:] {
		cells := make([]string, len(header))
		for i := range cells {
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ Extractor = (*FileExtractor)(nil)
