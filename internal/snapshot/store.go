package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/utils"
)

const (
	snapshotsDir = "snapshots"
	stagingDir   = "staging"
	filesDir     = "files"
	recordFile   = "manifest.json"
)

// Store persists immutable snapshots of one project under
// <root>/.snapbox/snapshots/<id>/. Creation stages into a scratch directory
// and promotes it with a single rename, so a snapshot is either fully
// materialized and recorded or not visible at all.
type Store struct {
	root    string
	baseDir string
}

func NewStore(projectRoot string) (*Store, error) {
	root, err := utils.ResolvePath(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	return &Store{
		root:    root,
		baseDir: filepath.Join(root, manifest.MetadataDir),
	}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) snapshotDir(id string) string {
	return filepath.Join(s.baseDir, snapshotsDir, id)
}

// FilesDir returns the directory holding a snapshot's copied file tree.
func (s *Store) FilesDir(id string) string {
	return filepath.Join(s.snapshotDir(id), filesDir)
}

// Create copies the current file set described by m into a new immutable
// snapshot. Prior snapshots are never touched. On any failure the staging
// area is discarded and a CreationError is returned.
func (s *Store) Create(ctx context.Context, m manifest.Manifest, label string) (*Snapshot, error) {
	now := time.Now()
	snap := &Snapshot{
		ID:         NewID(now, label),
		CreatedAt:  now,
		Label:      label,
		TotalBytes: m.TotalBytes(),
		FileCount:  len(m),
		Manifest:   m,
	}

	staging := filepath.Join(s.baseDir, stagingDir, uuid.NewString())
	if err := utils.EnsureDir(filepath.Join(staging, filesDir)); err != nil {
		return nil, &CreationError{Label: label, Err: err}
	}

	if err := s.stage(ctx, m, staging); err != nil {
		os.RemoveAll(staging)
		return nil, &CreationError{Label: label, Err: err}
	}

	record, err := json.Marshal(snap)
	if err != nil {
		os.RemoveAll(staging)
		return nil, &CreationError{Label: label, Err: err}
	}
	if err := os.WriteFile(filepath.Join(staging, recordFile), record, 0o644); err != nil {
		os.RemoveAll(staging)
		return nil, &CreationError{Label: label, Err: err}
	}

	final := s.snapshotDir(snap.ID)
	if err := utils.EnsureParent(final); err != nil {
		os.RemoveAll(staging)
		return nil, &CreationError{Label: label, Err: err}
	}
	if err := os.Rename(staging, final); err != nil {
		os.RemoveAll(staging)
		return nil, &CreationError{Label: label, Err: err}
	}

	return snap, nil
}

func (s *Store) stage(ctx context.Context, m manifest.Manifest, staging string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for path := range m {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src := filepath.Join(s.root, filepath.FromSlash(path))
			dst := filepath.Join(staging, filesDir, filepath.FromSlash(path))
			if err := utils.CopyFile(src, dst); err != nil {
				return fmt.Errorf("copy %s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// List returns all snapshots ordered by creation time, oldest first.
func (s *Store) List() ([]*Snapshot, error) {
	dir := filepath.Join(s.baseDir, snapshotsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	snaps := make([]*Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := s.Get(entry.Name())
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Latest returns the most recent snapshot, or nil when none exist.
func (s *Store) Latest() (*Snapshot, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[len(snaps)-1], nil
}

// Get loads one snapshot's record by id.
func (s *Store) Get(id string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.snapshotDir(id), recordFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read snapshot record %s: %w", id, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot record %s: %w", id, err)
	}
	return &snap, nil
}

// Delete removes a snapshot irreversibly. Ids in protected are refused with
// ErrProtectedSnapshot.
func (s *Store) Delete(id string, protected map[string]bool) error {
	if protected[id] {
		return fmt.Errorf("%w: %s", ErrProtectedSnapshot, id)
	}
	dir := s.snapshotDir(id)
	if !utils.DirExists(dir) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return os.RemoveAll(dir)
}
