package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"emojid/pkg/logger"
	"emojid/pkg/models"
	"emojid/pkg/state"
	"emojid/pkg/store"
)

// ErrDuplicateAsset is returned when registering a record whose content
// hash matches an existing active record.
var ErrDuplicateAsset = errors.New("asset with identical content already registered")

// maxEvictionCandidates caps the weighted sample offered to the eviction
// decision delegate.
const maxEvictionCandidates = 20

// Registry is the authoritative in-memory view over the record store. All
// mutations are serialized behind a single mutex; readers get copies taken
// under the same lock. Construct with New and inject where needed, there
// is no package-level instance.
type Registry struct {
	mu      sync.Mutex
	store   *store.RecordStore
	paths   state.Paths
	records []models.EmojiRecord

	maxActive int
	replace   bool
}

// New builds a Registry persisting through st, with file layout paths and
// the configured capacity policy.
func New(st *store.RecordStore, paths state.Paths, maxActive int, replace bool) *Registry {
	return &Registry{store: st, paths: paths, maxActive: maxActive, replace: replace}
}

// Initialize loads the persisted collection, dropping tombstones. Safe to
// call again; subsequent calls reload.
func (r *Registry) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := r.store.Load()
	r.records = r.records[:0]
	for _, rec := range loaded {
		if rec.Active() {
			r.records = append(r.records, rec)
		}
	}
	activeRecords.Set(float64(len(r.records)))
	logger.Info("registry_loaded", "active", len(r.records), "path", r.store.Path())
}

// ActiveCount returns the number of active records.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// AtCapacity reports whether the active count has reached the configured
// maximum.
func (r *Registry) AtCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records) >= r.maxActive
}

// ReplaceEnabled reports whether eviction at capacity is allowed.
func (r *Registry) ReplaceEnabled() bool { return r.replace }

// Snapshot returns a stable copy of the active records for lock-free
// reads (the matcher operates on snapshots).
func (r *Registry) Snapshot() []models.EmojiRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EmojiRecord, len(r.records))
	copy(out, r.records)
	return out
}

// FindByHash returns the active record with the given content hash.
func (r *Registry) FindByHash(hash string) (models.EmojiRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Hash == hash {
			return rec, true
		}
	}
	return models.EmojiRecord{}, false
}

// RecordUsage increments the usage counter of the record with the given
// hash and persists. A missing hash is a reporting condition only: usage
// recording is best-effort telemetry, not a correctness-critical path.
func (r *Registry) RecordUsage(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].Hash == hash {
			r.records[i].UsageCount++
			r.records[i].LastUsedTime = time.Now().Unix()
			if err := r.store.SaveAll(r.records); err != nil {
				logger.Error("record_usage_persist_failed", "hash", hash, "error", err)
			}
			usageRecordsTotal.Inc()
			return
		}
	}
	logger.Warn("record_usage_unknown_hash", "hash", hash)
}

// RegisterNew admits a record: rejects duplicates, moves the staged file
// into the registered directory, then persists. The file move happens
// before the metadata write so a crash in between is recoverable by
// hash-based duplicate detection on the next cycle.
func (r *Registry) RegisterNew(rec models.EmojiRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.Hash == rec.Hash {
			return ErrDuplicateAsset
		}
	}

	dest := filepath.Join(r.paths.Registered, rec.Filename)
	if _, err := os.Stat(rec.Path); err != nil {
		return fmt.Errorf("staged file missing: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		// stale orphan from an interrupted registration; replace it
		_ = os.Remove(dest)
	}
	if err := os.Rename(rec.Path, dest); err != nil {
		return fmt.Errorf("failed to move asset into registered dir: %w", err)
	}
	rec.Path = dest

	r.records = append(r.records, rec)
	if err := r.store.SaveAll(r.records); err != nil {
		r.records = r.records[:len(r.records)-1]
		return fmt.Errorf("failed to persist record: %w", err)
	}
	activeRecords.Set(float64(len(r.records)))
	registrationsTotal.Inc()
	logger.Info("emoji_registered", "hash", rec.Hash, "filename", rec.Filename, "tags", rec.EmotionTags)
	return nil
}

// DeleteByHash tombstones the record with the given hash, removes its
// backing file best-effort, and persists the reduced collection. Returns
// whether a matching active record was found.
func (r *Registry) DeleteByHash(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(hash)
}

func (r *Registry) deleteLocked(hash string) bool {
	for i := range r.records {
		if r.records[i].Hash != hash {
			continue
		}
		if err := os.Remove(r.records[i].Path); err != nil && !os.IsNotExist(err) {
			logger.Error("emoji_file_remove_failed", "path", r.records[i].Path, "error", err)
		}
		r.records[i].Deleted = true
		r.records = append(r.records[:i], r.records[i+1:]...)
		if err := r.store.SaveAll(r.records); err != nil {
			logger.Error("delete_persist_failed", "hash", hash, "error", err)
		}
		activeRecords.Set(float64(len(r.records)))
		deletionsTotal.Inc()
		logger.Info("emoji_deleted", "hash", hash)
		return true
	}
	logger.Warn("delete_unknown_hash", "hash", hash)
	return false
}

// CheckIntegrity walks the active set and removes records that are
// tombstoned, whose backing file is gone, or whose description is empty.
// Violations are resolved by removal, never by crashing. After the pass it
// sweeps orphaned files out of the registered directory.
func (r *Registry) CheckIntegrity() {
	r.mu.Lock()
	total := len(r.records)
	kept := r.records[:0]
	removed := 0
	for _, rec := range r.records {
		switch {
		case rec.Deleted:
			removed++
		case !fileExists(rec.Path):
			logger.Warn("integrity_missing_file", "hash", rec.Hash, "path", rec.Path)
			removed++
		case rec.Description == "":
			logger.Warn("integrity_empty_description", "hash", rec.Hash, "filename", rec.Filename)
			if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
				logger.Error("emoji_file_remove_failed", "path", rec.Path, "error", err)
			}
			removed++
		default:
			kept = append(kept, rec)
		}
	}
	r.records = kept
	if removed > 0 {
		if err := r.store.SaveAll(r.records); err != nil {
			logger.Error("integrity_persist_failed", "error", err)
		}
		integrityRemovalsTotal.Add(float64(removed))
		logger.Info("integrity_check_removed", "removed", removed, "before", total, "after", len(r.records))
	} else {
		logger.Debug("integrity_check_clean", "checked", total)
	}
	activeRecords.Set(float64(len(r.records)))

	tracked := make(map[string]bool, len(r.records))
	for _, rec := range r.records {
		tracked[rec.Path] = true
	}
	r.mu.Unlock()

	r.sweepOrphans(tracked)
}

// sweepOrphans deletes files in the registered directory not referenced
// by any live record.
func (r *Registry) sweepOrphans(tracked map[string]bool) {
	entries, err := os.ReadDir(r.paths.Registered)
	if err != nil {
		logger.Warn("orphan_sweep_skipped", "dir", r.paths.Registered, "error", err)
		return
	}
	swept := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(r.paths.Registered, e.Name())
		if tracked[full] {
			continue
		}
		if err := os.Remove(full); err != nil {
			logger.Error("orphan_remove_failed", "path", full, "error", err)
			continue
		}
		swept++
		logger.Info("orphan_removed", "path", full)
	}
	if swept > 0 {
		orphansSweptTotal.Add(float64(swept))
		logger.Info("orphan_sweep_done", "dir", r.paths.Registered, "swept", swept)
	}
}

// EvictionCandidates builds a weighted sample of up to 20 active records
// for the eviction decision delegate. Less-used records are proportionally
// more likely to be offered (weight 1/(usageCount+1)).
func (r *Registry) EvictionCandidates() []models.EmojiRecord {
	r.mu.Lock()
	pool := make([]models.EmojiRecord, len(r.records))
	copy(pool, r.records)
	r.mu.Unlock()

	k := maxEvictionCandidates
	if len(pool) < k {
		k = len(pool)
	}
	out := make([]models.EmojiRecord, 0, k)
	weights := make([]float64, len(pool))
	for i := range pool {
		weights[i] = 1.0 / float64(pool[i].UsageCount+1)
	}
	// weighted sampling without replacement
	for len(out) < k {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		x := rand.Float64() * total
		idx := len(pool) - 1
		for i, w := range weights {
			if x < w {
				idx = i
				break
			}
			x -= w
		}
		out = append(out, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
		weights = append(weights[:idx], weights[idx+1:]...)
	}
	return out
}

// MarkEviction records that a capacity eviction happened.
func (r *Registry) MarkEviction() { evictionsTotal.Inc() }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
