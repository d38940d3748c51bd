package manifest

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// MetadataDir is the tool's own directory inside a project. Always excluded
// from manifests, snapshots and scans.
const MetadataDir = ".snapbox"

var defaultIgnoreLines = []string{
	MetadataDir + "/",
	".git/",
	".hg/",
	"__pycache__/",
	"*.py[cod]",
	".ipynb_checkpoints/",
	".venv/",
	"venv/",
	"node_modules/",
	"dist/",
	"build/",
	".DS_Store",
	"Thumbs.db",
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
	"*.tmp",
}

// IgnoreList combines the built-in noise excludes with a project's own glob
// patterns. Paths are matched in their slash-normalized relative form.
type IgnoreList struct {
	noise    *gitignore.GitIgnore
	patterns []string
}

func NewIgnoreList(patterns []string) *IgnoreList {
	return &IgnoreList{
		noise:    gitignore.CompileIgnoreLines(defaultIgnoreLines...),
		patterns: patterns,
	}
}

// ShouldIgnore reports whether relPath is excluded from manifests.
func (il *IgnoreList) ShouldIgnore(relPath string) bool {
	if il.noise.MatchesPath(relPath) {
		return true
	}
	for _, pattern := range il.patterns {
		if MatchGlob(pattern, relPath) {
			return true
		}
	}
	return false
}

// MatchGlob matches a doublestar glob against a relative path. Bare patterns
// without a separator also match by basename, so "*.env" catches nested files.
func MatchGlob(pattern, relPath string) bool {
	if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		base := relPath
		if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
			base = relPath[idx+1:]
		}
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
