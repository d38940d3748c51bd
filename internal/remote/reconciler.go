package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/project"
	"github.com/snapbox/snapbox/internal/secrets"
	"github.com/snapbox/snapbox/internal/snapshot"
	"github.com/snapbox/snapbox/internal/utils"
)

const journalFile = "backups.db"

// JournalPath is where a project keeps its backup journal.
func JournalPath(p *project.Project) string {
	return filepath.Join(p.MetadataDir(), journalFile)
}

// Reconciler drives the one-way backup flow between a project and its remote
// mirror. It never merges: a foreign remote head blocks backups until the
// caller resolves it with AdoptRemote or OverrideRemote.
type Reconciler struct {
	svc     *project.Service
	store   Store
	journal *Journal
}

func NewReconciler(svc *project.Service, store Store, journal *Journal) *Reconciler {
	return &Reconciler{svc: svc, store: store, journal: journal}
}

// OpenReconciler wires a reconciler with the project's own backup journal.
func OpenReconciler(svc *project.Service, store Store) (*Reconciler, error) {
	journal, err := OpenJournal(JournalPath(svc.Project))
	if err != nil {
		return nil, err
	}
	return NewReconciler(svc, store, journal), nil
}

func (r *Reconciler) Close() error {
	return r.journal.Close()
}

// Status derives the reconciliation state. It is recomputed from the remote
// head, the project record and the backup journal, never stored.
func (r *Reconciler) Status(ctx context.Context) (Status, error) {
	p := r.svc.Project
	if p.LastBackupSnapshotID == "" {
		return StatusUnknown, nil
	}

	head, err := r.store.FetchHead(ctx)
	if errors.Is(err, ErrNoRemoteHead) {
		// a backup was recorded but the mirror is empty: local is ahead
		return StatusAheadLocal, nil
	}
	if err != nil {
		return StatusUnknown, err
	}

	if string(head) != p.RemoteRef {
		known, err := r.journal.Has(head)
		if err != nil {
			return StatusUnknown, err
		}
		if !known {
			return StatusAheadRemote, nil
		}
		// a ref we pushed but lost track of; local lineage still covers it
		return StatusAheadLocal, nil
	}

	if p.CurrentSnapshotID != "" && p.CurrentSnapshotID != p.LastBackupSnapshotID {
		return StatusAheadLocal, nil
	}
	tree, err := r.svc.Status(ctx)
	if err != nil {
		return StatusUnknown, err
	}
	if tree == manifest.StatusUnsaved {
		return StatusAheadLocal, nil
	}
	return StatusSynced, nil
}

// BackupOutcome is how a Backup attempt ended.
type BackupOutcome string

const (
	// BackupComplete: a payload was pushed and the project record updated.
	BackupComplete BackupOutcome = "complete"

	// BackupBlockedSecrets: the pre-push scan found secret-looking files and
	// no gate decision has been made. Nothing was pushed.
	BackupBlockedSecrets BackupOutcome = "blocked_secrets"
)

// BackupResult reports a finished or blocked backup. Findings is only set for
// BackupBlockedSecrets.
type BackupResult struct {
	Outcome    BackupOutcome
	SnapshotID string
	Ref        Ref
	Findings   []secrets.Finding
}

// Backup pushes the project's current saved state to the remote. The flow is
// gate, divergence check, snapshot, push: a blocked gate or a diverged mirror
// stops the backup before any state changes.
func (r *Reconciler) Backup(ctx context.Context, label string) (*BackupResult, error) {
	if blocked, err := r.checkSecretsGate(); blocked != nil || err != nil {
		return blocked, err
	}

	if _, err := r.checkDivergence(ctx); err != nil {
		return nil, err
	}

	snap, err := r.ensureSnapshot(ctx, label)
	if err != nil {
		return nil, err
	}

	ref, err := r.pushSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	return &BackupResult{Outcome: BackupComplete, SnapshotID: snap.ID, Ref: ref}, nil
}

// checkSecretsGate scans the tree when the gate has not been passed yet.
// Findings block the push with a BackupBlockedSecrets result; a clean scan
// passes the gate permanently. Every push path runs through this.
func (r *Reconciler) checkSecretsGate() (*BackupResult, error) {
	p := r.svc.Project
	if p.SecretsGatePassed {
		return nil, nil
	}

	findings, err := secrets.Scan(p.Root(), p.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	if len(findings) > 0 {
		return &BackupResult{Outcome: BackupBlockedSecrets, Findings: findings}, nil
	}
	p.SecretsGatePassed = true
	return nil, p.Save()
}

// checkDivergence returns the remote head, failing with a DivergenceError
// when the head is not derivable from this project's push lineage.
func (r *Reconciler) checkDivergence(ctx context.Context) (Ref, error) {
	head, err := r.store.FetchHead(ctx)
	if errors.Is(err, ErrNoRemoteHead) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if string(head) == r.svc.Project.RemoteRef {
		return head, nil
	}
	known, err := r.journal.Has(head)
	if err != nil {
		return "", err
	}
	if known {
		return head, nil
	}
	return head, &DivergenceError{LocalRef: Ref(r.svc.Project.RemoteRef), RemoteRef: head}
}

// ensureSnapshot returns the snapshot to back up: the tree's baseline when it
// is saved, otherwise a fresh snapshot of the working tree.
func (r *Reconciler) ensureSnapshot(ctx context.Context, label string) (*snapshot.Snapshot, error) {
	tree, err := r.svc.Status(ctx)
	if err != nil {
		return nil, err
	}
	if tree == manifest.StatusSaved {
		if id := r.svc.Project.CurrentSnapshotID; id != "" {
			snap, err := r.svc.Store().Get(id)
			if err == nil {
				return snap, nil
			}
			if !errors.Is(err, snapshot.ErrNotFound) {
				return nil, err
			}
		}
		latest, err := r.svc.Store().Latest()
		if err != nil {
			return nil, err
		}
		if latest != nil {
			return latest, nil
		}
	}

	result, err := r.svc.Save(ctx, label)
	if err != nil {
		return nil, err
	}
	return result.Snapshot, nil
}

// pushSnapshot streams the snapshot's stored content to the remote and
// records the new ref in the journal and the project record.
func (r *Reconciler) pushSnapshot(ctx context.Context, snap *snapshot.Snapshot) (Ref, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteArchive(pw, r.svc.Store().FilesDir(snap.ID), snap.Manifest))
	}()

	ref, err := r.store.Push(ctx, pr)
	pr.Close()
	if err != nil {
		return "", fmt.Errorf("push snapshot %s: %w", snap.ID, err)
	}

	if err := r.journal.Record(ref, snap.ID); err != nil {
		return "", err
	}
	p := r.svc.Project
	p.LastBackupSnapshotID = snap.ID
	p.RemoteRef = string(ref)
	return ref, p.Save()
}

// SecretsDecision resolves a BackupBlockedSecrets outcome.
type SecretsDecision string

const (
	// SecretsCancel: leave everything untouched; the next backup scans again.
	SecretsCancel SecretsDecision = "cancel"

	// SecretsIgnore: add the flagged paths to the project's ignore patterns
	// so they leave the manifest and future scans.
	SecretsIgnore SecretsDecision = "ignore"

	// SecretsOverride: accept the findings and pass the gate permanently.
	SecretsOverride SecretsDecision = "override"
)

// ResolveSecrets applies the caller's decision on a blocked backup. It never
// pushes; call Backup again afterwards.
func (r *Reconciler) ResolveSecrets(decision SecretsDecision, findings []secrets.Finding) error {
	switch decision {
	case SecretsCancel:
		return nil
	case SecretsIgnore:
		patterns := make([]string, 0, len(findings))
		for _, f := range findings {
			patterns = append(patterns, f.Path)
		}
		return r.svc.ApplyIgnorePatterns(patterns...)
	case SecretsOverride:
		r.svc.Project.SecretsGatePassed = true
		return r.svc.Project.Save()
	default:
		return fmt.Errorf("unknown secrets decision %q", decision)
	}
}

// AdoptRemote replaces the working tree with the remote head's content. The
// previous tree is preserved as a safety snapshot when it had unsaved work,
// and the adopted state becomes a new local snapshot, so nothing is lost from
// either side.
func (r *Reconciler) AdoptRemote(ctx context.Context) (*snapshot.Snapshot, error) {
	head, err := r.store.FetchHead(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.svc.Locker().Lock(); err != nil {
		return nil, err
	}
	defer r.svc.Locker().Unlock()

	p := r.svc.Project
	store := r.svc.Store()

	current, err := r.svc.Builder().Build(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := r.svc.Status(ctx)
	if err != nil {
		return nil, err
	}
	if tree == manifest.StatusUnsaved {
		if _, err := store.Create(ctx, current, "before adopting remote"); err != nil {
			return nil, err
		}
	}

	payload, err := r.store.Pull(ctx, head)
	if err != nil {
		return nil, err
	}
	defer payload.Close()

	if err := clearTree(p.Root(), current); err != nil {
		return nil, err
	}
	if err := ExtractArchive(payload, p.Root()); err != nil {
		return nil, fmt.Errorf("adopt remote %s: %w", head, err)
	}

	adopted, err := r.svc.Builder().Build(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := store.Create(ctx, adopted, "adopted remote")
	if err != nil {
		return nil, err
	}
	if _, err := store.EnforceRetention(p.RetentionLimit, r.svc.ProtectedSnapshots()); err != nil {
		var violation *snapshot.RetentionViolation
		if !errors.As(err, &violation) {
			return nil, err
		}
	}

	if err := r.journal.Record(head, snap.ID); err != nil {
		return nil, err
	}
	p.CurrentSnapshotID = snap.ID
	p.LastBackupSnapshotID = snap.ID
	p.RemoteRef = string(head)
	return snap, p.Save()
}

// OverrideRemote pushes the local state over a diverged mirror. The foreign
// head stays retrievable by ref on the remote; only HEAD moves. The secrets
// gate applies exactly as in Backup; only the divergence check is waived.
func (r *Reconciler) OverrideRemote(ctx context.Context, label string) (*BackupResult, error) {
	if blocked, err := r.checkSecretsGate(); blocked != nil || err != nil {
		return blocked, err
	}

	snap, err := r.ensureSnapshot(ctx, label)
	if err != nil {
		return nil, err
	}
	ref, err := r.pushSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	return &BackupResult{Outcome: BackupComplete, SnapshotID: snap.ID, Ref: ref}, nil
}

// clearTree removes every manifest-listed file under root and prunes the
// directories left empty. Ignored files are untouched.
func clearTree(root string, m manifest.Manifest) error {
	for _, rel := range m.Paths() {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear %s: %w", rel, err)
		}
	}
	for _, rel := range m.Paths() {
		dir := filepath.Dir(filepath.Join(root, filepath.FromSlash(rel)))
		for dir != root && len(dir) > len(root) {
			if err := os.Remove(dir); err != nil {
				break // non-empty
			}
			dir = filepath.Dir(dir)
		}
	}
	return nil
}

// Import materializes the remote head into dest as a new tracked project and
// records it as already backed up.
func Import(ctx context.Context, store Store, dest, name string) (*project.Service, error) {
	head, err := store.FetchHead(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := utils.ResolvePath(dest)
	if err != nil {
		return nil, err
	}
	if entries, err := os.ReadDir(resolved); err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("import destination %s is not empty", dest)
	}

	p, err := project.New(resolved, name, project.KindFolder)
	if err != nil {
		return nil, err
	}

	payload, err := store.Pull(ctx, head)
	if err != nil {
		return nil, err
	}
	defer payload.Close()
	if err := ExtractArchive(payload, p.Root()); err != nil {
		return nil, fmt.Errorf("import remote %s: %w", head, err)
	}

	svc, err := project.NewService(p)
	if err != nil {
		return nil, err
	}
	result, err := svc.Save(ctx, "imported from remote")
	if err != nil {
		return nil, err
	}

	journal, err := OpenJournal(JournalPath(p))
	if err != nil {
		return nil, err
	}
	defer journal.Close()
	if err := journal.Record(head, result.Snapshot.ID); err != nil {
		return nil, err
	}

	p.LastBackupSnapshotID = result.Snapshot.ID
	p.RemoteRef = string(head)
	p.SecretsGatePassed = true
	if err := p.Save(); err != nil {
		return nil, err
	}
	return svc, nil
}
