package project

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/utils"
)

var (
	home, _ = os.UserHomeDir()

	// ConfigDir holds snapbox's own global state (registry, env overrides,
	// logs). Overridable for tests.
	ConfigDir = filepath.Join(home, ".snapbox")
)

const registryFile = "known_projects.json"

type registry struct {
	Projects []string `json:"projects"`
}

func registryPath() string {
	return filepath.Join(ConfigDir, registryFile)
}

func loadRegistry() (*registry, error) {
	data, err := os.ReadFile(registryPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &registry{}, nil
		}
		return nil, err
	}
	var reg registry
	if err := json.Unmarshal(data, &reg); err != nil {
		// corrupt registry is rebuilt, not fatal
		return &registry{}, nil
	}
	return &reg, nil
}

func (r *registry) save() error {
	if err := utils.EnsureDir(ConfigDir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(registryPath(), data, 0o644)
}

// Register adds a project root to the known-projects registry.
func Register(root string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	for _, existing := range reg.Projects {
		if existing == root {
			return nil
		}
	}
	reg.Projects = append(reg.Projects, root)
	return reg.save()
}

// Unregister removes a project root from the registry.
func Unregister(root string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	kept := reg.Projects[:0]
	for _, existing := range reg.Projects {
		if existing != root {
			kept = append(kept, existing)
		}
	}
	reg.Projects = kept
	return reg.save()
}

// Known returns all registered project roots that still look like projects.
// Stale entries (missing dir or missing project.json) are dropped from the
// registry as a side effect and returned separately.
func Known() (active []string, stale []string, err error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, nil, err
	}

	for _, root := range reg.Projects {
		cfg := filepath.Join(root, manifest.MetadataDir, configFile)
		if utils.FileExists(cfg) {
			active = append(active, root)
		} else {
			stale = append(stale, root)
		}
	}

	if len(stale) > 0 {
		reg.Projects = active
		if err := reg.save(); err != nil {
			return active, stale, err
		}
	}
	return active, stale, nil
}
