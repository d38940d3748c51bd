package manifest

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snapbox/snapbox/internal/utils"
)

const (
	// transient per-file I/O is retried this many times before the file is
	// skipped with a warning
	readRetries = 3

	etagCacheSize = 8192
)

type etagCacheEntry struct {
	size    int64
	modTime time.Time
	etag    string
}

// Builder walks a project root and produces its manifest. Two consecutive
// builds over an unchanged tree yield identical manifests. The ETag cache
// keyed by path+size+mtime only skips rehashing; equality never relies on it.
type Builder struct {
	root   string
	ignore *IgnoreList
	etags  *lru.Cache[string, etagCacheEntry]
}

func NewBuilder(root string, patterns []string) (*Builder, error) {
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cache, err := lru.New[string, etagCacheEntry](etagCacheSize)
	if err != nil {
		return nil, fmt.Errorf("etag cache: %w", err)
	}
	return &Builder{
		root:   resolved,
		ignore: NewIgnoreList(patterns),
		etags:  cache,
	}, nil
}

func (b *Builder) Root() string {
	return b.root
}

// SetPatterns replaces the project glob patterns, e.g. after the caller
// accepted a secrets finding into the ignore list.
func (b *Builder) SetPatterns(patterns []string) {
	b.ignore = NewIgnoreList(patterns)
}

// Build walks the tree and returns a fresh manifest. The root being
// unreadable is fatal; a single file disappearing or failing mid-walk is not,
// the entry is retried and ultimately skipped with a warning. The walk is
// cancellable via ctx.
func (b *Builder) Build(ctx context.Context) (Manifest, error) {
	if _, err := os.Stat(b.root); err != nil {
		return nil, &FilesystemError{Path: b.root, Err: err}
	}

	m := make(Manifest)
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == b.root {
				return &FilesystemError{Path: path, Err: walkErr}
			}
			slog.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(b.root, path)
		if err != nil {
			return &FilesystemError{Path: path, Err: err}
		}
		relPath = utils.NormPath(relPath)

		if d.IsDir() {
			if path == b.root {
				return nil
			}
			if b.ignore.ShouldIgnore(relPath + "/") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || b.ignore.ShouldIgnore(relPath) {
			return nil
		}

		entry, err := b.readEntry(path)
		if err != nil {
			// possibly mutated by the cloud-sync client mid-walk
			slog.Warn("skipping file after retries", "path", relPath, "error", err)
			return nil
		}
		m[relPath] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// readEntry stats and hashes one file with bounded retries for transient
// errors. A file that vanished between walk and stat is reported so the
// caller can drop it from the manifest.
func (b *Builder) readEntry(path string) (*FileEntry, error) {
	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		info, err := os.Stat(path)
		if err != nil {
			lastErr = err
			continue
		}

		if cached, ok := b.etags.Get(path); ok &&
			cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
			return &FileEntry{Size: info.Size(), ETag: cached.etag, ModTime: info.ModTime()}, nil
		}

		etag, err := hashFile(path)
		if err != nil {
			lastErr = err
			continue
		}

		b.etags.Add(path, etagCacheEntry{size: info.Size(), modTime: info.ModTime(), etag: etag})
		return &FileEntry{Size: info.Size(), ETag: etag, ModTime: info.ModTime()}, nil
	}
	return nil, lastErr
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
