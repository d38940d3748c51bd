package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/project"
)

func newTestService(t *testing.T) *project.Service {
	t.Helper()
	orig := project.ConfigDir
	project.ConfigDir = t.TempDir()
	t.Cleanup(func() { project.ConfigDir = orig })

	p, err := project.New(filepath.Join(t.TempDir(), "proj"), "proj", project.KindFolder)
	require.NoError(t, err)
	svc, err := project.NewService(p)
	require.NoError(t, err)
	return svc
}

func waitForStatus(t *testing.T, ch <-chan manifest.TreeStatus, want manifest.TreeStatus) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestMonitor_ReportsUnsavedAfterWrite(t *testing.T) {
	svc := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMonitor(svc, 100*time.Millisecond)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	// empty tree with no snapshots reads as saved
	waitForStatus(t, m.Changes(), manifest.StatusSaved)

	require.NoError(t, os.WriteFile(filepath.Join(svc.Project.Root(), "main.py"), []byte("print('x')\n"), 0o644))
	waitForStatus(t, m.Changes(), manifest.StatusUnsaved)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}

func TestMonitor_IgnoresMetadataChurn(t *testing.T) {
	svc := newTestService(t)
	m := NewMonitor(svc, time.Second)

	assert.True(t, m.isMetadataPath(filepath.Join(svc.Project.Root(), ".snapbox", "project.json")))
	assert.True(t, m.isMetadataPath(filepath.Join(svc.Project.Root(), ".snapbox")))
	assert.False(t, m.isMetadataPath(filepath.Join(svc.Project.Root(), "main.py")))
}
