package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileHashRecord maps relative document paths to content hashes. It
// is the diff baseline for change detection: only files whose hash
// differs are re-embedded.
type FileHashRecord map[string]string

// ContentHash returns the hash of a document's extracted text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// hashStore persists a FileHashRecord per collection as JSON in the
// data directory.
type hashStore struct {
	dataDir string
}

func newHashStore(dataDir string) *hashStore {
	return &hashStore{dataDir: dataDir}
}

func (h *hashStore) path(collection string) string {
	return filepath.Join(h.dataDir, "hashes_"+collection+".json")
}

// Load returns the persisted record, or an empty one when none
// exists.
func (h *hashStore) Load(collection string) (FileHashRecord, error) {
	data, err := os.ReadFile(h.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return FileHashRecord{}, nil
		}
		return nil, fmt.Errorf("read hash record: %w", err)
	}

	var record FileHashRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal hash record: %w", err)
	}
	return record, nil
}

// Save atomically replaces the persisted record.
func (h *hashStore) Save(collection string, record FileHashRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hash record: %w", err)
	}

	tmpPath := h.path(collection) + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write hash record: %w", err)
	}
	return os.Rename(tmpPath, h.path(collection))
}

// Invalidate deletes the persisted record, forcing a full rehash on
// the next index pass. Model migration uses this: chunk identity
// survives a model change but the hash cache must not mask it.
func (h *hashStore) Invalidate(collection string) error {
	err := os.Remove(h.path(collection))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalidate hash record: %w", err)
	}
	return nil
}
