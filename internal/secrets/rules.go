package secrets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/snapbox/snapbox/internal/manifest"
)

// Tier is the risk class of a finding.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

func (t Tier) rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	}
	return 0
}

// Exact filename or extension matches. Anything here is credential material.
var highNames = []string{
	".env", ".envrc", ".netrc", ".npmrc", ".pypirc",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
	"credentials.json", "service_account.json", "secrets.yaml", "secrets.yml",
}

var highExts = []string{
	".pem", ".key", ".p12", ".pfx", ".ppk", ".jks", ".keystore",
}

// Filename patterns and directory contexts that usually mean credentials.
var mediumGlobs = []string{
	".env.*", "*secret*", "*token*", "*credential*", "*password*", "*_rsa", "*_rsa.pub",
}

var mediumDirs = []string{
	".ssh", ".aws", ".gnupg",
}

// Generic candidates: config, database and backup files worth a look before
// the first offsite push.
var lowGlobs = []string{
	"*.db", "*.sqlite", "*.sqlite3", "*.bak", "*.dump", "*.ini", "*.cfg", "config.json",
}

// rulesFile is the optional per-project overlay at .snapbox/secrets.yaml.
// Globs add to the built-in lists, they never remove built-ins.
type rulesFile struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
	Low    []string `yaml:"low"`
}

type ruleset struct {
	highNames   map[string]bool
	highExts    map[string]bool
	highGlobs   []string
	mediumGlobs []string
	mediumDirs  []string
	lowGlobs    []string
}

func loadRules(root string) (*ruleset, error) {
	rs := &ruleset{
		highNames:   make(map[string]bool, len(highNames)),
		highExts:    make(map[string]bool, len(highExts)),
		mediumGlobs: mediumGlobs,
		mediumDirs:  mediumDirs,
		lowGlobs:    lowGlobs,
	}
	for _, name := range highNames {
		rs.highNames[name] = true
	}
	for _, ext := range highExts {
		rs.highExts[ext] = true
	}

	data, err := os.ReadFile(filepath.Join(root, manifest.MetadataDir, "secrets.yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rs, nil
		}
		return nil, err
	}

	var overlay rulesFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, err
	}
	rs.highGlobs = overlay.High
	rs.mediumGlobs = append(rs.mediumGlobs, overlay.Medium...)
	rs.lowGlobs = append(rs.lowGlobs, overlay.Low...)
	return rs, nil
}
