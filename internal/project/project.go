// Package project owns the per-project version state: the persisted metadata
// record, the advisory lock serializing writers, and the registry of known
// projects.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/utils"
)

const (
	// DefaultRetentionLimit is the snapshot cap for new projects.
	DefaultRetentionLimit = 10

	configFile = "project.json"
	lockFile   = "lock"
)

var ErrNotAProject = errors.New("no snapbox project at path")

// Kind is a closed variant over the two project flavors. Only the
// code-bearing python kind carries a launch command.
type Kind string

const (
	KindPython Kind = "python"
	KindFolder Kind = "folder"
)

func (k Kind) valid() bool {
	return k == KindPython || k == KindFolder
}

// Project is the mutable version state of one tracked directory. One instance
// per project root; persisted to .snapbox/project.json after every mutation.
// The record is forward-readable: unknown fields are ignored on load and
// missing fields get defaults.
type Project struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// LaunchCommand is only meaningful for KindPython.
	LaunchCommand string `json:"launch_command,omitempty"`

	Created        time.Time `json:"created"`
	RetentionLimit int       `json:"retention_limit"`

	// CurrentSnapshotID is the snapshot the working tree last matched: the
	// newest one after a save, the restore target after a restore. Change
	// detection compares against it so a restored tree reports saved.
	CurrentSnapshotID string `json:"current_snapshot_id,omitempty"`

	IgnorePatterns       []string `json:"ignore_patterns"`
	LastBackupSnapshotID string   `json:"last_backup_snapshot_id,omitempty"`
	RemoteRef            string   `json:"remote_ref,omitempty"`
	SecretsGatePassed    bool     `json:"secrets_gate_passed"`

	root string
}

// New creates and persists project state for root. The directory is created
// if needed and the project is registered in the known-projects registry.
func New(root, name string, kind Kind) (*Project, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("unknown project kind %q", kind)
	}
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(resolved); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	p := &Project{
		Name:           name,
		Kind:           kind,
		Created:        time.Now(),
		RetentionLimit: DefaultRetentionLimit,
		root:           resolved,
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	if err := Register(resolved); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads project state from root. Missing fields are defaulted so records
// written by older versions keep loading.
func Load(root string) (*Project, error) {
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(resolved, manifest.MetadataDir, configFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotAProject, resolved)
		}
		return nil, fmt.Errorf("read project config: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode project config: %w", err)
	}
	p.root = resolved
	p.applyDefaults()
	return &p, nil
}

func (p *Project) applyDefaults() {
	if p.RetentionLimit <= 0 {
		p.RetentionLimit = DefaultRetentionLimit
	}
	if p.Kind == "" {
		p.Kind = KindFolder
	}
	if p.Name == "" {
		p.Name = filepath.Base(p.root)
	}
}

// Save persists the record. Persistence is an explicit step after each
// successful mutation, never an ambient side effect mid-operation.
func (p *Project) Save() error {
	if p.Kind != KindPython && p.LaunchCommand != "" {
		return fmt.Errorf("launch command is only valid for %s projects", KindPython)
	}

	path := filepath.Join(p.MetadataDir(), configFile)
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (p *Project) Root() string {
	return p.root
}

func (p *Project) MetadataDir() string {
	return filepath.Join(p.root, manifest.MetadataDir)
}

func (p *Project) lockPath() string {
	return filepath.Join(p.MetadataDir(), lockFile)
}

// AddIgnorePatterns appends new patterns, skipping duplicates, and persists.
func (p *Project) AddIgnorePatterns(patterns ...string) error {
	existing := make(map[string]bool, len(p.IgnorePatterns))
	for _, pattern := range p.IgnorePatterns {
		existing[pattern] = true
	}
	for _, pattern := range patterns {
		if !existing[pattern] {
			p.IgnorePatterns = append(p.IgnorePatterns, pattern)
			existing[pattern] = true
		}
	}
	return p.Save()
}

// Remove drops a project from tracking: the metadata directory (snapshots
// included) is deleted and the registry entry removed. User files are never
// touched.
func Remove(root string) error {
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return err
	}
	if err := Unregister(resolved); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(resolved, manifest.MetadataDir))
}
