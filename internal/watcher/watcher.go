// Package watcher keeps a live view of a project's save state. A filesystem
// watcher feeds a debounced monitor that re-derives the tree status after
// each burst of changes settles.
package watcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/project"
)

const DefaultDebounce = 2 * time.Second

type FileWatcher struct {
	watchDir string
	events   chan notify.EventInfo
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir: watchDir,
		events:   make(chan notify.EventInfo, 64),
	}
}

func (fw *FileWatcher) Start() error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	recursivePath := fw.watchDir + "/..."
	return notify.Watch(recursivePath, fw.events, notify.Write, notify.Create, notify.Remove, notify.Rename)
}

func (fw *FileWatcher) Stop() {
	notify.Stop(fw.events)
	close(fw.events)
	slog.Info("file watcher stop")
}

func (fw *FileWatcher) Events() <-chan notify.EventInfo {
	return fw.events
}

// Monitor recomputes the project's tree status once file events go quiet for
// the debounce window. Snapshot metadata churn is filtered out so saves and
// restores don't re-trigger the monitor.
type Monitor struct {
	svc      *project.Service
	watcher  *FileWatcher
	debounce time.Duration
	changes  chan manifest.TreeStatus
}

func NewMonitor(svc *project.Service, debounce time.Duration) *Monitor {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Monitor{
		svc:      svc,
		watcher:  NewFileWatcher(svc.Project.Root()),
		debounce: debounce,
		changes:  make(chan manifest.TreeStatus, 1),
	}
}

// Changes emits the status after every settled burst of file events,
// including an initial reading on Run.
func (m *Monitor) Changes() <-chan manifest.TreeStatus {
	return m.changes
}

func (m *Monitor) Run(ctx context.Context) error {
	if err := m.watcher.Start(); err != nil {
		return err
	}
	defer m.watcher.Stop()

	m.publish(ctx)

	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-m.watcher.Events():
			if !ok {
				return nil
			}
			if m.isMetadataPath(event.Path()) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(m.debounce)
			pending = true

		case <-timer.C:
			pending = false
			m.publish(ctx)
		}
	}
}

func (m *Monitor) publish(ctx context.Context) {
	status, err := m.svc.Status(ctx)
	if err != nil {
		slog.Warn("status check failed", "project", m.svc.Project.Name, "error", err)
		return
	}
	slog.Debug("tree status", "project", m.svc.Project.Name, "status", status)

	select {
	case m.changes <- status:
	default:
		// drop: the consumer only cares about the latest reading
		select {
		case <-m.changes:
		default:
		}
		select {
		case m.changes <- status:
		default:
		}
	}
}

func (m *Monitor) isMetadataPath(path string) bool {
	rel := strings.TrimPrefix(path, m.svc.Project.Root())
	rel = strings.TrimPrefix(rel, "/")
	return rel == manifest.MetadataDir || strings.HasPrefix(rel, manifest.MetadataDir+"/")
}
