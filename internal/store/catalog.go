package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kbforge/docindex/internal/chunk"
)

// Catalog persists chunk metadata and embeddings in SQLite, keyed by
// collection. It is the durable record the vector and keyword indexes
// can be rebuilt from; a model swap renames its rows to the promoted
// collection so nothing is re-embedded.
type Catalog struct {
	db *sql.DB
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection   TEXT NOT NULL,
	id           TEXT NOT NULL,
	source       TEXT NOT NULL,
	text         TEXT NOT NULL,
	heading      TEXT NOT NULL DEFAULT '',
	heading_path TEXT NOT NULL DEFAULT '',
	doc_type     TEXT NOT NULL DEFAULT 'docs',
	char_count   INTEGER NOT NULL DEFAULT 0,
	word_count   INTEGER NOT NULL DEFAULT 0,
	line_start   INTEGER NOT NULL DEFAULT 0,
	line_end     INTEGER NOT NULL DEFAULT 0,
	embedding    BLOB,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(collection, source);
CREATE INDEX IF NOT EXISTS idx_chunks_doc_type ON chunks(collection, doc_type);
`

// OpenCatalog opens (creating if needed) the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	// modernc.org/sqlite serializes writes internally; a single
	// connection avoids SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Upsert writes chunks and their embeddings for collection in one
// transaction. chunks and embeddings are parallel; embeddings may be
// nil when only metadata is known.
func (c *Catalog) Upsert(ctx context.Context, collection string, chunks []chunk.Chunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if embeddings != nil && len(embeddings) != len(chunks) {
		return fmt.Errorf("chunks and embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, source, text, heading, heading_path, doc_type,
			char_count, word_count, line_start, line_end, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			source = excluded.source,
			text = excluded.text,
			heading = excluded.heading,
			heading_path = excluded.heading_path,
			doc_type = excluded.doc_type,
			char_count = excluded.char_count,
			word_count = excluded.word_count,
			line_start = excluded.line_start,
			line_end = excluded.line_end,
			embedding = COALESCE(excluded.embedding, chunks.embedding)`)
	if err != nil {
		return fmt.Errorf("prepare catalog upsert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		var blob []byte
		if embeddings != nil && embeddings[i] != nil {
			blob = encodeEmbedding(embeddings[i])
		}
		if _, err := stmt.ExecContext(ctx, collection, ch.ID, ch.Source, ch.Text,
			ch.Heading, ch.HeadingPath, ch.DocType,
			ch.CharCount, ch.WordCount, ch.LineStart, ch.LineEnd, blob); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
		}
	}

	return tx.Commit()
}

// Delete removes chunks by ID from collection.
func (c *Catalog) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE collection = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("prepare catalog delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, collection, id); err != nil {
			return fmt.Errorf("delete chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Get fetches chunks by ID. Missing IDs are simply absent from the
// result map.
func (c *Catalog) Get(ctx context.Context, collection string, ids []string) (map[string]StoredChunk, error) {
	result := make(map[string]StoredChunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	// SQLite caps bound parameters; chunk the lookup.
	const lookupBatch = 500
	for start := 0; start < len(ids); start += lookupBatch {
		end := start + lookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, 0, len(batch)+1)
		args = append(args, collection)
		for _, id := range batch {
			args = append(args, id)
		}

		rows, err := c.db.QueryContext(ctx,
			`SELECT id, source, text, heading, heading_path, doc_type,
				char_count, word_count, line_start, line_end, embedding
			 FROM chunks WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("query chunks: %w", err)
		}
		if err := scanStoredChunks(rows, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// All streams every chunk in collection through fn in primary-key
// order, in batches bounded by batchSize.
func (c *Catalog) All(ctx context.Context, collection string, batchSize int, fn func([]StoredChunk) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	lastID := ""
	for {
		rows, err := c.db.QueryContext(ctx,
			`SELECT id, source, text, heading, heading_path, doc_type,
				char_count, word_count, line_start, line_end, embedding
			 FROM chunks WHERE collection = ? AND id > ?
			 ORDER BY id LIMIT ?`, collection, lastID, batchSize)
		if err != nil {
			return fmt.Errorf("query chunks: %w", err)
		}

		batch := make(map[string]StoredChunk, batchSize)
		if err := scanStoredChunks(rows, batch); err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		ordered := make([]StoredChunk, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for id := range batch {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			ordered = append(ordered, batch[id])
		}
		lastID = ids[len(ids)-1]

		if err := fn(ordered); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

// Count returns the number of chunks in collection.
func (c *Catalog) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// AllIDs returns every chunk ID in collection.
func (c *Catalog) AllIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TypeDistribution returns doc_type -> chunk count for collection.
func (c *Catalog) TypeDistribution(ctx context.Context, collection string) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT doc_type, COUNT(*) FROM chunks WHERE collection = ? GROUP BY doc_type`, collection)
	if err != nil {
		return nil, fmt.Errorf("query type distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[string]int)
	for rows.Next() {
		var docType string
		var n int
		if err := rows.Scan(&docType, &n); err != nil {
			return nil, fmt.Errorf("scan type distribution: %w", err)
		}
		dist[docType] = n
	}
	return dist, rows.Err()
}

// DropCollection deletes every chunk belonging to collection.
func (c *Catalog) DropCollection(ctx context.Context, collection string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("drop collection %s: %w", collection, err)
	}
	return nil
}

// RenameCollection moves every chunk from src to dst. Rows already
// present in dst are replaced. Used by migration promotion.
func (c *Catalog) RenameCollection(ctx context.Context, src, dst string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ?`, dst); err != nil {
		return fmt.Errorf("clear destination collection %s: %w", dst, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chunks SET collection = ? WHERE collection = ?`, dst, src); err != nil {
		return fmt.Errorf("rename collection %s to %s: %w", src, dst, err)
	}
	return tx.Commit()
}

// Collections lists the distinct collection names present.
func (c *Catalog) Collections(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT collection FROM chunks ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func scanStoredChunks(rows *sql.Rows, into map[string]StoredChunk) error {
	defer rows.Close()
	for rows.Next() {
		var ch chunk.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.Source, &ch.Text, &ch.Heading, &ch.HeadingPath,
			&ch.DocType, &ch.CharCount, &ch.WordCount, &ch.LineStart, &ch.LineEnd, &blob); err != nil {
			return fmt.Errorf("scan chunk row: %w", err)
		}
		into[ch.ID] = StoredChunk{Chunk: ch, Embedding: decodeEmbedding(blob)}
	}
	return rows.Err()
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
