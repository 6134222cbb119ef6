package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"emojid/pkg/logger"
	"emojid/pkg/models"
)

// RecordStore persists the full emoji record collection as one JSON
// document. Every mutation re-serializes the whole in-memory collection;
// there are no partial-record updates.
type RecordStore struct {
	path string
}

// NewRecordStore returns a store writing to path. The file is created on
// the first SaveAll.
func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// Path returns the backing file location.
func (s *RecordStore) Path() string { return s.path }

// Load reads the persisted record collection. A missing or malformed file
// yields an empty collection with a warning, never an error: a corrupted
// store must not take the service down.
func (s *RecordStore) Load() []models.EmojiRecord {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("record_store_read_failed", "path", s.path, "error", err)
			loadWarningsTotal.Inc()
		}
		return nil
	}
	var recs []models.EmojiRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		logger.Warn("record_store_corrupted", "path", s.path, "error", err)
		loadWarningsTotal.Inc()
		return nil
	}
	return recs
}

// SaveAll atomically replaces the persisted collection with recs using
// write-temp-then-rename so a crash mid-write never leaves a truncated
// file behind.
func (s *RecordStore) SaveAll(recs []models.EmojiRecord) error {
	if recs == nil {
		recs = []models.EmojiRecord{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".records-*.tmp")
	if err != nil {
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to sync records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		saveFailuresTotal.Inc()
		return fmt.Errorf("failed to replace record store: %w", err)
	}
	savesTotal.Inc()
	storeSizeBytes.Set(float64(len(data)))
	return nil
}
