// Package reconciler runs the background control loop that keeps the
// on-disk file set and the persisted record collection consistent: it
// verifies record integrity, sweeps orphans, bounds temp-file growth, and
// discovers newly approved assets to register.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"emojid/pkg/captioner"
	"emojid/pkg/config"
	"emojid/pkg/imaging"
	"emojid/pkg/logger"
	"emojid/pkg/models"
	"emojid/pkg/registry"
	"emojid/pkg/state"
)

// tempCleanThreshold is the entry count above which a scratch directory is
// emptied once per cycle.
const tempCleanThreshold = 100

// errNoAdmission marks a cycle outcome where a staged file stays staged
// (capacity reached with replacement disabled, or the eviction delegate
// declined). It does not count against the file's retry budget.
var errNoAdmission = errors.New("no admission this cycle")

// Reconciler drives the periodic scan-and-register loop.
type Reconciler struct {
	reg         *registry.Registry
	svc         captioner.Service
	paths       state.Paths
	interval    time.Duration
	cron        string
	retryBudget int

	// failures counts consecutive failed registration attempts per staged
	// filename. A transient captioning failure must not immediately
	// discard a potentially valid asset; the file is deleted only once
	// the budget is exhausted.
	failures map[string]int
}

// New builds a Reconciler over the given registry and captioning service.
func New(reg *registry.Registry, svc captioner.Service, paths state.Paths, cfg config.EmojiConfig) *Reconciler {
	return &Reconciler{
		reg:         reg,
		svc:         svc,
		paths:       paths,
		interval:    cfg.CheckInterval.Duration(),
		cron:        cfg.Cron,
		retryBudget: cfg.RegisterRetryBudget,
		failures:    make(map[string]int),
	}
}

// Start launches the scheduler goroutine and returns a cancel func. When a
// cron expression is configured it drives the schedule; otherwise the loop
// fires at the fixed interval.
func (r *Reconciler) Start(ctx context.Context) (context.CancelFunc, error) {
	if r.cron != "" && !gronx.IsValid(r.cron) {
		logger.Error("reconciler_invalid_cron", "cron", r.cron)
		return nil, fmt.Errorf("invalid reconciler cron expression: %s", r.cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go r.runScheduler(ctx2)
	logger.Info("reconciler_started", "interval", r.interval.String(), "cron", r.cron)
	return cancel, nil
}

func (r *Reconciler) runScheduler(ctx context.Context) {
	for {
		wait := r.interval
		if r.cron != "" {
			next, err := gronx.NextTickAfter(r.cron, time.Now().UTC(), false)
			if err != nil {
				logger.Error("reconciler_nexttick_failed", "cron", r.cron, "error", err)
				wait = 30 * time.Second
			} else {
				wait = time.Until(next)
			}
		}
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			logger.Info("reconciler_stopping")
			return
		}
		// cycles run inline so they never overlap
		if err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reconcile_cycle_error", "error", err)
		}
	}
}

// RunOnce performs a single reconciliation cycle: integrity check (with
// orphan sweep), temp cleanup, discovery, registration. Cancellation is
// honored between files, never mid-file-move.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	started := time.Now()
	cyclesTotal.Inc()
	logger.Info("reconcile_cycle_start")

	r.reg.CheckIntegrity()
	r.cleanTempDirs()

	if err := r.discoverAndRegister(ctx); err != nil {
		return err
	}
	cycleDuration.Observe(time.Since(started).Seconds())
	logger.Info("reconcile_cycle_done", "elapsed", time.Since(started).String())
	return nil
}

// discoverAndRegister lists the approved staging directory and tries to
// register each supported image file. A single bad asset never halts the
// scan of the remaining batch.
func (r *Reconciler) discoverAndRegister(ctx context.Context) error {
	entries, err := os.ReadDir(r.paths.Approved)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("staging_dir_missing", "dir", r.paths.Approved)
			return os.MkdirAll(r.paths.Approved, 0o700)
		}
		return fmt.Errorf("failed to list staging dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imaging.SupportedFile(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	r.pruneFailures(files)
	if len(files) == 0 {
		logger.Debug("no_staged_files")
		return nil
	}
	discoveredTotal.Add(float64(len(files)))

	if r.reg.AtCapacity() && !r.reg.ReplaceEnabled() {
		// known backpressure condition: staged files wait until the
		// active count drops below the maximum
		logger.Warn("capacity_reached_no_replacement", "staged", len(files), "active", r.reg.ActiveCount())
		return nil
	}

	for _, name := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		err := r.registerFile(ctx, name)
		switch {
		case err == nil:
			delete(r.failures, name)
		case errors.Is(err, errNoAdmission):
			// leave staged, retry next cycle
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			r.failures[name]++
			registerFailuresTotal.Inc()
			logger.Warn("register_failed", "file", name, "attempts", r.failures[name], "error", err)
			if r.failures[name] >= r.retryBudget {
				staged := filepath.Join(r.paths.Approved, name)
				if rmErr := os.Remove(staged); rmErr != nil && !os.IsNotExist(rmErr) {
					logger.Error("staged_remove_failed", "path", staged, "error", rmErr)
				} else {
					abandonedTotal.Inc()
					logger.Warn("staged_file_abandoned", "file", name, "attempts", r.failures[name])
				}
				removeSidecar(staged)
				delete(r.failures, name)
			}
		}
	}
	return nil
}

// pruneFailures drops retry counters for staged files that no longer
// appear in the discovery listing, e.g. removed by an operator.
func (r *Reconciler) pruneFailures(files []string) {
	if len(r.failures) == 0 {
		return
	}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	for name := range r.failures {
		if !present[name] {
			delete(r.failures, name)
		}
	}
}

// registerFile runs the per-file pipeline: identify, dedupe, caption,
// admit (possibly after eviction).
func (r *Reconciler) registerFile(ctx context.Context, name string) error {
	staged := filepath.Join(r.paths.Approved, name)
	data, err := os.ReadFile(staged)
	if err != nil {
		return fmt.Errorf("failed to read staged file: %w", err)
	}
	info, err := imaging.Identify(data)
	if err != nil {
		// possibly mid-write; the retry budget decides when to give up
		return err
	}

	if _, exists := r.reg.FindByHash(info.Hash); exists {
		// content already registered elsewhere; staged copy is redundant
		logger.Info("duplicate_staged_file", "file", name, "hash", info.Hash)
		duplicatesTotal.Inc()
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			logger.Error("staged_remove_failed", "path", staged, "error", err)
		}
		removeSidecar(staged)
		return nil
	}

	desc, tags, err := r.svc.Describe(ctx, data, info.Format)
	if err != nil {
		return err
	}
	if desc == "" {
		return fmt.Errorf("captioner returned empty description")
	}

	rec := models.NewEmojiRecord(info.Hash, staged, imaging.HashedFilename(info.Hash, name), info.Format)
	rec.Description = desc
	rec.EmotionTags = tags

	if r.reg.AtCapacity() {
		if !r.reg.ReplaceEnabled() {
			logger.Warn("capacity_reached_no_replacement", "file", name, "active", r.reg.ActiveCount())
			return errNoAdmission
		}
		if err := r.evictOne(ctx, desc); err != nil {
			return err
		}
	}
	if err := r.reg.RegisterNew(rec); err != nil {
		return err
	}
	removeSidecar(staged)
	return nil
}

// removeSidecar deletes the approval metadata sidecar once the staged
// file it annotated has left the approved directory.
func removeSidecar(staged string) {
	meta := staged + ".meta"
	if err := os.Remove(meta); err != nil && !os.IsNotExist(err) {
		logger.Warn("sidecar_remove_failed", "path", meta, "error", err)
	}
}

// evictOne consults the decision delegate over a weighted candidate
// sample. A malformed or negative decision keeps every candidate; the new
// asset stays staged and waits for the next cycle without consuming its
// retry budget.
func (r *Reconciler) evictOne(ctx context.Context, newDescription string) error {
	recs := r.reg.EvictionCandidates()
	if len(recs) == 0 {
		return fmt.Errorf("at capacity with no eviction candidates")
	}
	cands := make([]captioner.EvictionCandidate, len(recs))
	for i, rec := range recs {
		cands[i] = captioner.EvictionCandidate{
			Description:  rec.Description,
			UsageCount:   rec.UsageCount,
			RegisterTime: rec.RegisterTime,
		}
	}
	decision, err := r.svc.DecideEviction(ctx, cands, newDescription)
	if err != nil {
		return fmt.Errorf("eviction decision failed: %w", err)
	}
	if !decision.Delete {
		logger.Info("eviction_declined")
		return errNoAdmission
	}
	victim := recs[decision.Index]
	logger.Info("eviction_selected", "hash", victim.Hash, "description", victim.Description)
	if !r.reg.DeleteByHash(victim.Hash) {
		return fmt.Errorf("eviction victim vanished: %s", victim.Hash)
	}
	r.reg.MarkEviction()
	return nil
}

// cleanTempDirs empties scratch directories whose entry count exceeds the
// threshold, bounding unbounded temp-file accumulation. Best-effort.
func (r *Reconciler) cleanTempDirs() {
	for _, dir := range []string{r.paths.Tmp} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if len(entries) <= tempCleanThreshold {
			continue
		}
		removed := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
		logger.Info("temp_dir_cleaned", "dir", dir, "removed", removed)
	}
}
