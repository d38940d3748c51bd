package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbox/snapbox/internal/project"
)

func useTempConfigDir(t *testing.T) {
	t.Helper()
	orig := project.ConfigDir
	project.ConfigDir = t.TempDir()
	t.Cleanup(func() { project.ConfigDir = orig })
}

func newTestProject(t *testing.T, files map[string]string) *project.Service {
	t.Helper()
	root := filepath.Join(t.TempDir(), "proj")
	p, err := project.New(root, "proj", project.KindFolder)
	require.NoError(t, err)
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	svc, err := project.NewService(p)
	require.NoError(t, err)
	return svc
}

func newTestReconciler(t *testing.T, svc *project.Service, mirror Store) *Reconciler {
	t.Helper()
	rec, err := OpenReconciler(svc, mirror)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestBackup_FirstPush(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	svc := newTestProject(t, map[string]string{"main.py": "print('v1')\n"})
	mirror, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	status, err := rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)

	result, err := rec.Backup(ctx, "first backup")
	require.NoError(t, err)
	require.Equal(t, BackupComplete, result.Outcome)
	assert.NotEmpty(t, result.Ref)
	assert.Equal(t, result.SnapshotID, svc.Project.LastBackupSnapshotID)
	assert.Equal(t, string(result.Ref), svc.Project.RemoteRef)

	status, err = rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)
}

func TestStatus_AheadLocalAfterNewWork(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	svc := newTestProject(t, map[string]string{"main.py": "print('v1')\n"})
	mirror, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	_, err = rec.Backup(ctx, "first backup")
	require.NoError(t, err)

	// unsaved edits already count as ahead
	writeFile(t, svc.Project.Root(), "main.py", "print('v2')\n")
	status, err := rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAheadLocal, status)

	// so does a newer snapshot
	_, err = svc.Save(ctx, "v2")
	require.NoError(t, err)
	status, err = rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAheadLocal, status)
}

func TestBackup_DivergedMirrorBlocksWithoutMutation(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	svc := newTestProject(t, map[string]string{"main.py": "print('v1')\n"})
	mirrorDir := t.TempDir()
	mirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	first, err := rec.Backup(ctx, "first backup")
	require.NoError(t, err)

	// someone else pushes to the same mirror
	other := newTestProject(t, map[string]string{"other.py": "pass\n"})
	otherMirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	otherRec := newTestReconciler(t, other, otherMirror)
	_, err = otherRec.OverrideRemote(ctx, "foreign push")
	require.NoError(t, err)

	status, err := rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAheadRemote, status)

	writeFile(t, svc.Project.Root(), "main.py", "print('v2')\n")
	_, err = rec.Backup(ctx, "second backup")
	var diverged *DivergenceError
	require.ErrorAs(t, err, &diverged)
	assert.Equal(t, Ref(svc.Project.RemoteRef), diverged.LocalRef)

	// the failed backup must not move the recorded backup point
	assert.Equal(t, first.SnapshotID, svc.Project.LastBackupSnapshotID)
	assert.Equal(t, string(first.Ref), svc.Project.RemoteRef)
}

func TestBackup_SecretsGate(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	svc := newTestProject(t, map[string]string{
		"main.py": "print('v1')\n",
		".env":    "API_KEY=hunter2\n",
	})
	mirror, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	result, err := rec.Backup(ctx, "first backup")
	require.NoError(t, err)
	require.Equal(t, BackupBlockedSecrets, result.Outcome)
	require.NotEmpty(t, result.Findings)
	assert.Equal(t, ".env", result.Findings[0].Path)

	// nothing was pushed
	_, err = mirror.FetchHead(ctx)
	assert.ErrorIs(t, err, ErrNoRemoteHead)

	// ignoring the flagged paths clears the next scan
	require.NoError(t, rec.ResolveSecrets(SecretsIgnore, result.Findings))
	result, err = rec.Backup(ctx, "first backup")
	require.NoError(t, err)
	require.Equal(t, BackupComplete, result.Outcome)

	// the ignored secret never reaches the mirror
	rc, err := mirror.Pull(ctx, result.Ref)
	require.NoError(t, err)
	defer rc.Close()
	dest := t.TempDir()
	require.NoError(t, ExtractArchive(rc, dest))
	assert.FileExists(t, filepath.Join(dest, "main.py"))
	assert.NoFileExists(t, filepath.Join(dest, ".env"))
}

func TestResolveSecrets_Override(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	svc := newTestProject(t, map[string]string{".env": "API_KEY=x\n"})
	mirror, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	result, err := rec.Backup(ctx, "backup")
	require.NoError(t, err)
	require.Equal(t, BackupBlockedSecrets, result.Outcome)

	require.NoError(t, rec.ResolveSecrets(SecretsOverride, result.Findings))
	assert.True(t, svc.Project.SecretsGatePassed)

	result, err = rec.Backup(ctx, "backup")
	require.NoError(t, err)
	assert.Equal(t, BackupComplete, result.Outcome)
}

func TestOverrideRemote_SecretsGateApplies(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	svc := newTestProject(t, map[string]string{
		"main.py": "print('v1')\n",
		".env":    "API_KEY=hunter2\n",
	})
	mirror, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	result, err := rec.OverrideRemote(ctx, "force push")
	require.NoError(t, err)
	require.Equal(t, BackupBlockedSecrets, result.Outcome)
	require.NotEmpty(t, result.Findings)
	assert.False(t, svc.Project.SecretsGatePassed)

	// the blocked override pushed nothing
	_, err = mirror.FetchHead(ctx)
	assert.ErrorIs(t, err, ErrNoRemoteHead)

	require.NoError(t, rec.ResolveSecrets(SecretsIgnore, result.Findings))
	result, err = rec.OverrideRemote(ctx, "force push")
	require.NoError(t, err)
	require.Equal(t, BackupComplete, result.Outcome)

	rc, err := mirror.Pull(ctx, result.Ref)
	require.NoError(t, err)
	defer rc.Close()
	dest := t.TempDir()
	require.NoError(t, ExtractArchive(rc, dest))
	assert.NoFileExists(t, filepath.Join(dest, ".env"))
}

func TestResolveSecrets_CancelLeavesStateAlone(t *testing.T) {
	useTempConfigDir(t)
	svc := newTestProject(t, map[string]string{".env": "API_KEY=x\n"})
	mirror, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)

	require.NoError(t, rec.ResolveSecrets(SecretsCancel, nil))
	assert.False(t, svc.Project.SecretsGatePassed)
	assert.Empty(t, svc.Project.IgnorePatterns)
}

func TestAdoptRemote_ReplacesTreeAndKeepsSafetySnapshot(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	mirrorDir := t.TempDir()

	src := newTestProject(t, map[string]string{"main.py": "print('upstream')\n"})
	srcMirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	srcRec := newTestReconciler(t, src, srcMirror)
	_, err = srcRec.Backup(ctx, "upstream")
	require.NoError(t, err)

	local := newTestProject(t, map[string]string{"notes.txt": "scratch work\n"})
	localMirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	localRec := newTestReconciler(t, local, localMirror)

	snap, err := localRec.AdoptRemote(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "print('upstream')\n", readFile(t, local.Project.Root(), "main.py"))
	assert.NoFileExists(t, filepath.Join(local.Project.Root(), "notes.txt"))

	// the pre-adopt tree survived as a snapshot
	snaps, err := local.Store().List()
	require.NoError(t, err)
	labels := make([]string, 0, len(snaps))
	for _, s := range snaps {
		labels = append(labels, s.Label)
	}
	assert.Contains(t, labels, "before adopting remote")
	assert.Contains(t, labels, "adopted remote")

	status, err := localRec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)
}

func TestOverrideRemote_MovesHeadPastForeignPush(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	mirrorDir := t.TempDir()

	svc := newTestProject(t, map[string]string{"main.py": "print('v1')\n"})
	mirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	rec := newTestReconciler(t, svc, mirror)
	_, err = rec.Backup(ctx, "first backup")
	require.NoError(t, err)

	other := newTestProject(t, map[string]string{"other.py": "pass\n"})
	otherMirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	otherRec := newTestReconciler(t, other, otherMirror)
	foreign, err := otherRec.OverrideRemote(ctx, "foreign push")
	require.NoError(t, err)

	result, err := rec.OverrideRemote(ctx, "take back")
	require.NoError(t, err)
	require.Equal(t, BackupComplete, result.Outcome)

	head, err := mirror.FetchHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Ref, head)

	status, err := rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)

	// the foreign push is overridden, not destroyed
	rc, err := mirror.Pull(ctx, foreign.Ref)
	require.NoError(t, err)
	rc.Close()
}

func TestImport_MaterializesRemoteAsTrackedProject(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()
	mirrorDir := t.TempDir()

	src := newTestProject(t, map[string]string{
		"main.py":     "print('v1')\n",
		"lib/util.py": "x = 1\n",
	})
	srcMirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	srcRec := newTestReconciler(t, src, srcMirror)
	_, err = srcRec.Backup(ctx, "publish")
	require.NoError(t, err)

	mirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	dest := filepath.Join(t.TempDir(), "copy")
	svc, err := Import(ctx, mirror, dest, "copy")
	require.NoError(t, err)

	assert.Equal(t, "print('v1')\n", readFile(t, svc.Project.Root(), "main.py"))
	assert.Equal(t, "x = 1\n", readFile(t, svc.Project.Root(), "lib/util.py"))
	assert.NotEmpty(t, svc.Project.LastBackupSnapshotID)

	rec := newTestReconciler(t, svc, mirror)
	status, err := rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)
}

func TestImport_RefusesNonEmptyDestination(t *testing.T) {
	useTempConfigDir(t)
	ctx := context.Background()

	src := newTestProject(t, map[string]string{"main.py": "print('v1')\n"})
	mirrorDir := t.TempDir()
	srcMirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	srcRec := newTestReconciler(t, src, srcMirror)
	_, err = srcRec.Backup(ctx, "publish")
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "existing.txt"), []byte("here"), 0o644))

	mirror, err := NewDirStore(mirrorDir)
	require.NoError(t, err)
	_, err = Import(ctx, mirror, dest, "copy")
	assert.ErrorContains(t, err, "not empty")
}
