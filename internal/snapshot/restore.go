package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/utils"
)

// SafetyLabel marks the snapshot created automatically before a restore
// overwrites unsaved work.
const SafetyLabel = "before restore"

// RestoreState tracks a restore through its state machine.
type RestoreState string

const (
	RestoreIdle                RestoreState = "idle"
	RestoreSafetyCheck         RestoreState = "safety_check"
	RestoreSafetyBackupCreated RestoreState = "safety_backup_created"
	RestoreSkippedSafety       RestoreState = "skipped_safety"
	RestoreMaterializing       RestoreState = "materializing"
	RestoreComplete            RestoreState = "complete"
	RestoreFailed              RestoreState = "failed"
)

// RestoreResult is the outcome surfaced to the caller. The UI renders it;
// nothing here is formatted user text.
type RestoreResult struct {
	State            RestoreState
	TargetID         string
	SafetySnapshotID string
	FailedPaths      []string
}

// RestoreEngine materializes a chosen snapshot back onto the working tree.
// Restores never truncate history: they append (the safety snapshot) and
// copy forward.
type RestoreEngine struct {
	store          *Store
	builder        *manifest.Builder
	retentionLimit int
	protected      map[string]bool

	// baselineID is the snapshot the tree last matched; empty means compare
	// against the newest snapshot.
	baselineID string
}

func NewRestoreEngine(store *Store, builder *manifest.Builder, retentionLimit int, protected map[string]bool, baselineID string) *RestoreEngine {
	return &RestoreEngine{
		store:          store,
		builder:        builder,
		retentionLimit: retentionLimit,
		protected:      protected,
		baselineID:     baselineID,
	}
}

// Restore brings the working tree to the exact state of targetID.
// If the tree has unsaved changes a safety snapshot is created first, so
// current work is never silently lost. After copying, the resulting tree is
// re-manifested and verified against the target; any mismatch fails the
// restore with an IntegrityError naming the unverified paths.
func (e *RestoreEngine) Restore(ctx context.Context, targetID string) (*RestoreResult, error) {
	result := &RestoreResult{State: RestoreIdle, TargetID: targetID}

	target, err := e.store.Get(targetID)
	if err != nil {
		result.State = RestoreFailed
		return result, err
	}

	result.State = RestoreSafetyCheck
	current, err := e.builder.Build(ctx)
	if err != nil {
		result.State = RestoreFailed
		return result, err
	}

	baseline, err := e.baseline()
	if err != nil {
		result.State = RestoreFailed
		return result, err
	}

	if manifest.DetectStatus(current, baseline) == manifest.StatusUnsaved {
		safety, err := e.store.Create(ctx, current, SafetyLabel)
		if err != nil {
			result.State = RestoreFailed
			return result, err
		}
		result.SafetySnapshotID = safety.ID
		result.State = RestoreSafetyBackupCreated

		// the restore target must survive the safety snapshot's retention
		// pass even when it is the oldest in the store
		protected := map[string]bool{targetID: true}
		for id := range e.protected {
			protected[id] = true
		}

		var violation *RetentionViolation
		if _, err := e.store.EnforceRetention(e.retentionLimit, protected); errors.As(err, &violation) {
			slog.Warn("retention violated", "limit", violation.Limit, "count", violation.Count)
		} else if err != nil {
			result.State = RestoreFailed
			return result, err
		}
	} else {
		result.State = RestoreSkippedSafety
	}

	result.State = RestoreMaterializing
	if err := e.materialize(ctx, current, target); err != nil {
		result.State = RestoreFailed
		return result, err
	}

	rebuilt, err := e.builder.Build(ctx)
	if err != nil {
		result.State = RestoreFailed
		return result, err
	}
	if !rebuilt.Equal(target.Manifest) {
		diff := rebuilt.DiffAgainst(target.Manifest)
		result.FailedPaths = append(result.FailedPaths, diff.Added...)
		result.FailedPaths = append(result.FailedPaths, diff.Removed...)
		result.FailedPaths = append(result.FailedPaths, diff.Changed...)
		result.State = RestoreFailed
		return result, &IntegrityError{SnapshotID: targetID, Paths: result.FailedPaths}
	}

	result.State = RestoreComplete
	return result, nil
}

// baseline resolves the manifest the working tree should be compared with
// for the safety check: the snapshot it last matched when known, otherwise
// the newest one.
func (e *RestoreEngine) baseline() (manifest.Manifest, error) {
	if e.baselineID != "" {
		snap, err := e.store.Get(e.baselineID)
		if err == nil {
			return snap.Manifest, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// evicted since; fall through to the newest snapshot
	}

	latest, err := e.store.Latest()
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Manifest, nil
}

// materialize removes working-tree files absent from the target manifest,
// then copies every target file from the snapshot's stored content.
func (e *RestoreEngine) materialize(ctx context.Context, current manifest.Manifest, target *Snapshot) error {
	root := e.store.Root()

	for path := range current {
		if _, ok := target.Manifest[path]; ok {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(path))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		pruneEmptyParents(root, abs)
	}

	src := e.store.FilesDir(target.ID)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for path := range target.Manifest {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			from := filepath.Join(src, filepath.FromSlash(path))
			to := filepath.Join(root, filepath.FromSlash(path))
			if err := utils.CopyFile(from, to); err != nil {
				return fmt.Errorf("copy %s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// pruneEmptyParents removes now-empty directories up to (not including) root.
func pruneEmptyParents(root, path string) {
	for dir := filepath.Dir(path); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return // non-empty or still in use
		}
	}
}
