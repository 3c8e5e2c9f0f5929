package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/kbforge/docindex/internal/chunk"
)

// DocsAnalyzerName is the analyzer applied to chunk text.
const DocsAnalyzerName = "docs_analyzer"

// corpusIDsFile records the indexed chunk IDs alongside the bleve
// directory. It is the cheap source of truth for "does a keyword
// index exist and what does it cover" without a full index scan.
const corpusIDsFile = "corpus_ids.json"

// KeywordIndex is a BM25 index over chunk text backed by bleve.
// Rebuild replaces the whole corpus; keyword indexing is cheap
// relative to embedding so full passes rebuild it wholesale.
type KeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string // empty for in-memory (tests)
	ids    map[string]struct{}
	closed bool
}

// keywordDocument is the bleve document shape.
type keywordDocument struct {
	Text    string `json:"text"`
	DocType string `json:"doc_type"`
	Source  string `json:"source"`
}

// NewKeywordIndex opens or creates a keyword index at path. An empty
// path creates an in-memory index. A corrupted on-disk index is
// cleared and recreated rather than failing open, since the corpus
// can always be rebuilt from the catalog.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	indexMapping, err := createKeywordMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword index corrupted, clearing",
				"path", path, "error", validErr)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupted keyword index at %s: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword index open failed, recreating",
				"path", path, "error", err)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupted keyword index: %w", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	k := &KeywordIndex{index: idx, path: path, ids: make(map[string]struct{})}
	if path != "" {
		if err := k.loadCorpusIDs(); err != nil {
			slog.Warn("keyword corpus id list unreadable, rebuilding from index",
				"path", path, "error", err)
			k.recoverCorpusIDs()
		}
	}
	return k, nil
}

func createKeywordMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(DocsAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = DocsAnalyzerName

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = DocsAnalyzerName

	// doc_type and source are exact-match filters, never tokenized.
	typeField := bleve.NewTextFieldMapping()
	typeField.Analyzer = keyword.Name
	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = keyword.Name
	sourceField.Index = false
	sourceField.Store = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("doc_type", typeField)
	docMapping.AddFieldMappingsAt("source", sourceField)
	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

// validateIndexIntegrity checks a bleve directory before opening it.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		strings.Contains(msg, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Rebuild replaces the entire corpus with chunks.
func (k *KeywordIndex) Rebuild(ctx context.Context, chunks []chunk.Chunk) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for id := range k.ids {
		batch.Delete(id)
	}
	for _, c := range chunks {
		doc := keywordDocument{Text: c.Text, DocType: c.DocType, Source: c.Source}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("execute rebuild batch: %w", err)
	}

	k.ids = make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		k.ids[c.ID] = struct{}{}
	}
	return k.saveCorpusIDs()
}

// Index upserts chunks without touching the rest of the corpus.
func (k *KeywordIndex) Index(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for _, c := range chunks {
		doc := keywordDocument{Text: c.Text, DocType: c.DocType, Source: c.Source}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}

	for _, c := range chunks {
		k.ids[c.ID] = struct{}{}
	}
	return k.saveCorpusIDs()
}

// Delete removes chunks by ID.
func (k *KeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("execute delete batch: %w", err)
	}

	for _, id := range ids {
		delete(k.ids, id)
	}
	return k.saveCorpusIDs()
}

// Search returns up to limit BM25 hits for query. A non-empty docType
// restricts the candidate pool before scoring.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int, docType string) ([]KeywordHit, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(query) == "" || len(k.ids) == 0 {
		return []KeywordHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")

	var req *bleve.SearchRequest
	if docType != "" {
		typeQuery := bleve.NewTermQuery(docType)
		typeQuery.SetField("doc_type")
		req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, typeQuery))
	} else {
		req = bleve.NewSearchRequest(matchQuery)
	}
	req.Size = limit
	req.IncludeLocations = true

	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, KeywordHit{
			ID:           hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return hits, nil
}

// Count returns the corpus size.
func (k *KeywordIndex) Count() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return 0
	}
	return len(k.ids)
}

// AllIDs returns every indexed chunk ID, sorted.
func (k *KeywordIndex) AllIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	ids := make([]string, 0, len(k.ids))
	for id := range k.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes the underlying bleve index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	if k.index != nil {
		return k.index.Close()
	}
	return nil
}

func (k *KeywordIndex) corpusIDsPath() string {
	return filepath.Join(filepath.Dir(k.path), corpusIDsFile)
}

func (k *KeywordIndex) saveCorpusIDs() error {
	if k.path == "" {
		return nil
	}

	ids := make([]string, 0, len(k.ids))
	for id := range k.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal corpus ids: %w", err)
	}

	tmpPath := k.corpusIDsPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write corpus ids: %w", err)
	}
	return os.Rename(tmpPath, k.corpusIDsPath())
}

func (k *KeywordIndex) loadCorpusIDs() error {
	data, err := os.ReadFile(k.corpusIDsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("unmarshal corpus ids: %w", err)
	}
	k.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		k.ids[id] = struct{}{}
	}
	return nil
}

// recoverCorpusIDs rebuilds the in-memory ID set from the index
// itself when the sidecar list is missing or unreadable.
func (k *KeywordIndex) recoverCorpusIDs() {
	count, err := k.index.DocCount()
	if err != nil || count == 0 {
		return
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	result, err := k.index.Search(req)
	if err != nil {
		return
	}

	k.ids = make(map[string]struct{}, len(result.Hits))
	for _, hit := range result.Hits {
		k.ids[hit.ID] = struct{}{}
	}
	_ = k.saveCorpusIDs()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "text" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
