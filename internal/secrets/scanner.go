// Package secrets classifies project files by exposure risk before the first
// offsite backup. The scan is a pure function over the working tree and the
// project's ignore patterns; findings are never persisted.
package secrets

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/utils"
)

// Finding is one at-risk file. Ephemeral: recomputed per scan.
type Finding struct {
	Path string
	Tier Tier
	Rule string
}

const contentProbeLimit = 256 * 1024

var (
	rePrivateKey  = regexp.MustCompile(`-----BEGIN (?:[A-Z ]+ )?PRIVATE KEY-----`)
	reAWSKeyID    = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	reGitHubToken = regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)
)

// Scan walks the working tree and reports at-risk files. Already-ignored
// paths are skipped. When multiple rules match a path the highest tier wins.
func Scan(root string, ignorePatterns []string) ([]Finding, error) {
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(resolved); err != nil {
		return nil, &manifest.FilesystemError{Path: resolved, Err: err}
	}

	rules, err := loadRules(resolved)
	if err != nil {
		return nil, fmt.Errorf("load secrets rules: %w", err)
	}

	ignore := manifest.NewIgnoreList(ignorePatterns)
	var findings []Finding

	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == resolved {
				return &manifest.FilesystemError{Path: p, Err: walkErr}
			}
			slog.Warn("scan skipping unreadable entry", "path", p, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(resolved, p)
		if err != nil {
			return nil
		}
		relPath = utils.NormPath(relPath)

		if d.IsDir() {
			if p != resolved && ignore.ShouldIgnore(relPath+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.ShouldIgnore(relPath) {
			return nil
		}

		if finding, ok := classify(p, relPath, rules); ok {
			findings = append(findings, finding)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Tier.rank() != findings[j].Tier.rank() {
			return findings[i].Tier.rank() > findings[j].Tier.rank()
		}
		return findings[i].Path < findings[j].Path
	})
	return findings, nil
}

// classify applies the rule tiers in priority order and keeps the best match.
func classify(absPath, relPath string, rules *ruleset) (Finding, bool) {
	base := path.Base(relPath)
	ext := strings.ToLower(path.Ext(base))

	if rules.highNames[base] {
		return Finding{Path: relPath, Tier: TierHigh, Rule: "filename " + base}, true
	}
	if rules.highExts[ext] {
		return Finding{Path: relPath, Tier: TierHigh, Rule: "extension " + ext}, true
	}
	for _, glob := range rules.highGlobs {
		if manifest.MatchGlob(glob, relPath) {
			return Finding{Path: relPath, Tier: TierHigh, Rule: "rule " + glob}, true
		}
	}
	if rule, ok := probeContent(absPath); ok {
		return Finding{Path: relPath, Tier: TierHigh, Rule: rule}, true
	}

	for _, dir := range rules.mediumDirs {
		if hasSegment(relPath, dir) {
			return Finding{Path: relPath, Tier: TierMedium, Rule: "directory " + dir}, true
		}
	}
	for _, glob := range rules.mediumGlobs {
		if manifest.MatchGlob(glob, relPath) {
			return Finding{Path: relPath, Tier: TierMedium, Rule: "pattern " + glob}, true
		}
	}

	for _, glob := range rules.lowGlobs {
		if manifest.MatchGlob(glob, relPath) {
			return Finding{Path: relPath, Tier: TierLow, Rule: "candidate " + glob}, true
		}
	}
	return Finding{}, false
}

func hasSegment(relPath, segment string) bool {
	for _, part := range strings.Split(path.Dir(relPath), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// probeContent sniffs the head of small files for key material and known
// token shapes. Binary-looking or large files are skipped.
func probeContent(absPath string) (string, bool) {
	info, err := os.Stat(absPath)
	if err != nil || info.Size() == 0 || info.Size() > contentProbeLimit {
		return "", false
	}

	file, err := os.Open(absPath)
	if err != nil {
		return "", false
	}
	defer file.Close()

	head, err := io.ReadAll(io.LimitReader(file, contentProbeLimit))
	if err != nil || bytes.IndexByte(head, 0) >= 0 {
		return "", false
	}

	switch {
	case rePrivateKey.Match(head):
		return "content private-key", true
	case reAWSKeyID.Match(head):
		return "content aws-access-key", true
	case reGitHubToken.Match(head):
		return "content github-token", true
	}
	return "", false
}
