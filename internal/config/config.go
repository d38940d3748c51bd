// Package config holds snapbox's user-level settings: defaults applied to
// new projects and the mirror the backup flow talks to.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/snapbox/snapbox/internal/project"
	"github.com/snapbox/snapbox/internal/remote"
	"github.com/snapbox/snapbox/internal/utils"
)

// MirrorKind selects the remote store implementation.
type MirrorKind string

const (
	MirrorDir  MirrorKind = "dir"
	MirrorS3   MirrorKind = "s3"
	MirrorHTTP MirrorKind = "http"
)

// MirrorConfig describes one backup target. Exactly the fields for its kind
// are meaningful.
type MirrorConfig struct {
	Kind MirrorKind `json:"kind"`

	// dir
	Dir string `json:"dir,omitempty"`

	// s3
	S3 *remote.S3Config `json:"s3,omitempty"`

	// http
	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`
}

// Open builds the remote store this mirror points at.
func (m *MirrorConfig) Open() (remote.Store, error) {
	switch m.Kind {
	case MirrorDir:
		if m.Dir == "" {
			return nil, errors.New("mirror: dir not set")
		}
		return remote.NewDirStore(m.Dir)
	case MirrorS3:
		if m.S3 == nil {
			return nil, errors.New("mirror: s3 settings not set")
		}
		return remote.NewS3Store(m.S3)
	case MirrorHTTP:
		if m.URL == "" {
			return nil, errors.New("mirror: url not set")
		}
		return remote.NewHTTPStore(m.URL, m.Token), nil
	default:
		return nil, fmt.Errorf("mirror: unknown kind %q", m.Kind)
	}
}

type Config struct {
	RetentionLimit int           `json:"retention_limit"`
	WatchDebounce  time.Duration `json:"watch_debounce"`
	LogLevel       string        `json:"log_level"`
	Mirror         *MirrorConfig `json:"mirror,omitempty"`

	Path string `json:"-"`
}

func DefaultPath() string {
	return filepath.Join(project.ConfigDir, "config.json")
}

func defaults() *Config {
	return &Config{
		RetentionLimit: project.DefaultRetentionLimit,
		WatchDebounce:  2 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads the config at path, filling defaults for missing fields. A
// missing file is not an error; it yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	cfg.Path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.RetentionLimit <= 0 {
		cfg.RetentionLimit = project.DefaultRetentionLimit
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = 2 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
