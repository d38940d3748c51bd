// Package manifest builds and compares deterministic content manifests of a
// project tree. A manifest maps slash-normalized relative paths to file
// entries; change detection depends only on signature equality.
package manifest

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// FileEntry describes one file in a manifest. ETag is the MD5 content hash.
// ModTime is informational only and never takes part in comparisons, since
// cloud-sync clients rewrite modification times without changing content.
type FileEntry struct {
	Size    int64     `json:"size"`
	ETag    string    `json:"etag"`
	ModTime time.Time `json:"mod_time"`
}

// Manifest maps relative file paths to their entries.
type Manifest map[string]*FileEntry

// Equal reports whether both manifests describe the same tree: same paths,
// same sizes, same content signatures.
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for path, entry := range m {
		o, ok := other[path]
		if !ok || o.Size != entry.Size || o.ETag != entry.ETag {
			return false
		}
	}
	return true
}

// TotalBytes sums the sizes of all entries.
func (m Manifest) TotalBytes() int64 {
	var total int64
	for _, entry := range m {
		total += entry.Size
	}
	return total
}

// Paths returns all manifest paths in sorted order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Diff is the structural difference between two manifests.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffAgainst computes the diff from prev to m (m is the newer state).
func (m Manifest) DiffAgainst(prev Manifest) Diff {
	current := mapset.NewThreadUnsafeSet[string]()
	for path := range m {
		current.Add(path)
	}
	previous := mapset.NewThreadUnsafeSet[string]()
	for path := range prev {
		previous.Add(path)
	}

	diff := Diff{
		Added:   current.Difference(previous).ToSlice(),
		Removed: previous.Difference(current).ToSlice(),
	}
	for _, path := range current.Intersect(previous).ToSlice() {
		if m[path].Size != prev[path].Size || m[path].ETag != prev[path].ETag {
			diff.Changed = append(diff.Changed, path)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	return diff
}
