package project

import (
	"context"
	"errors"
	"log/slog"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/snapshot"
)

// Service binds a project's state to its manifest builder and snapshot store
// and runs the versioning operations under the project lock.
type Service struct {
	Project *Project

	store   *snapshot.Store
	builder *manifest.Builder
	locker  *Locker
}

func NewService(p *Project) (*Service, error) {
	store, err := snapshot.NewStore(p.Root())
	if err != nil {
		return nil, err
	}
	builder, err := manifest.NewBuilder(p.Root(), p.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	return &Service{
		Project: p,
		store:   store,
		builder: builder,
		locker:  NewLocker(p),
	}, nil
}

func (s *Service) Store() *snapshot.Store {
	return s.store
}

func (s *Service) Builder() *manifest.Builder {
	return s.builder
}

func (s *Service) Locker() *Locker {
	return s.locker
}

// SaveResult is the outcome of a Save surfaced to the caller.
type SaveResult struct {
	Snapshot *snapshot.Snapshot
	Evicted  []string
}

// Save snapshots the current working tree, enforces retention and persists
// the project state. A RetentionViolation does not fail the save; it is
// logged and the result still carries the new snapshot.
func (s *Service) Save(ctx context.Context, label string) (*SaveResult, error) {
	if err := s.locker.Lock(); err != nil {
		return nil, err
	}
	defer s.locker.Unlock()

	m, err := s.builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := s.store.Create(ctx, m, label)
	if err != nil {
		return nil, err
	}

	evicted, err := s.store.EnforceRetention(s.Project.RetentionLimit, s.ProtectedSnapshots())
	var violation *snapshot.RetentionViolation
	if errors.As(err, &violation) {
		slog.Warn("retention violated", "limit", violation.Limit, "count", violation.Count)
	} else if err != nil {
		return nil, err
	}

	s.Project.CurrentSnapshotID = snap.ID
	if err := s.Project.Save(); err != nil {
		return nil, err
	}
	return &SaveResult{Snapshot: snap, Evicted: evicted}, nil
}

// Status rebuilds the working-tree manifest and compares it to the latest
// snapshot. Side-effect free; callable on any schedule.
func (s *Service) Status(ctx context.Context) (manifest.TreeStatus, error) {
	m, err := s.builder.Build(ctx)
	if err != nil {
		return "", err
	}

	baseline, err := s.baseline()
	if err != nil {
		return "", err
	}
	return manifest.DetectStatus(m, baseline), nil
}

// baseline is the manifest the tree is compared with: the snapshot it last
// matched (save or restore target) when still present, else the newest one.
func (s *Service) baseline() (manifest.Manifest, error) {
	if id := s.Project.CurrentSnapshotID; id != "" {
		snap, err := s.store.Get(id)
		if err == nil {
			return snap.Manifest, nil
		}
		if !errors.Is(err, snapshot.ErrNotFound) {
			return nil, err
		}
	}

	latest, err := s.store.Latest()
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Manifest, nil
}

// Restore materializes targetID onto the working tree under the project lock.
func (s *Service) Restore(ctx context.Context, targetID string) (*snapshot.RestoreResult, error) {
	if err := s.locker.Lock(); err != nil {
		return nil, err
	}
	defer s.locker.Unlock()

	engine := snapshot.NewRestoreEngine(
		s.store, s.builder, s.Project.RetentionLimit, s.ProtectedSnapshots(), s.Project.CurrentSnapshotID)
	result, err := engine.Restore(ctx, targetID)
	if err != nil {
		return result, err
	}

	s.Project.CurrentSnapshotID = targetID
	if err := s.Project.Save(); err != nil {
		return result, err
	}
	return result, nil
}

// ProtectedSnapshots returns the ids retention must not evict. The last
// backed-up snapshot is protected while newer snapshots exist, preserving the
// ability to diff against the last known-backed-up point.
func (s *Service) ProtectedSnapshots() map[string]bool {
	id := s.Project.LastBackupSnapshotID
	if id == "" {
		return nil
	}
	latest, err := s.store.Latest()
	if err != nil || latest == nil || latest.ID == id {
		return nil
	}
	return map[string]bool{id: true}
}

// ApplyIgnorePatterns persists new ignore patterns and rebuilds the manifest
// builder so subsequent walks exclude them.
func (s *Service) ApplyIgnorePatterns(patterns ...string) error {
	if err := s.Project.AddIgnorePatterns(patterns...); err != nil {
		return err
	}
	s.builder.SetPatterns(s.Project.IgnorePatterns)
	return nil
}
