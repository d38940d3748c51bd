package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/snapbox/snapbox/internal/utils"
)

const (
	objectsDir = "objects"
	headFile   = "HEAD"
)

type headRecord struct {
	Ref      Ref       `json:"ref"`
	PushedAt time.Time `json:"pushed_at"`
}

// DirStore mirrors a project into a plain directory: a second cloud folder,
// a mounted drive, a NAS share. The default remote.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	resolved, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(filepath.Join(resolved, objectsDir)); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}
	return &DirStore{dir: resolved}, nil
}

func (s *DirStore) objectPath(ref Ref) string {
	return filepath.Join(s.dir, objectsDir, string(ref)+".tar.gz")
}

func (s *DirStore) Push(ctx context.Context, payload io.Reader) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := Ref(uuid.NewString())
	staging := s.objectPath(ref) + ".partial"

	file, err := os.Create(staging)
	if err != nil {
		return "", fmt.Errorf("stage payload: %w", err)
	}
	if _, err := io.Copy(file, payload); err != nil {
		file.Close()
		os.Remove(staging)
		return "", fmt.Errorf("write payload: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(staging)
		return "", err
	}
	if err := os.Rename(staging, s.objectPath(ref)); err != nil {
		os.Remove(staging)
		return "", err
	}

	if err := s.writeHead(headRecord{Ref: ref, PushedAt: time.Now()}); err != nil {
		return "", err
	}
	return ref, nil
}

// writeHead replaces HEAD atomically so a concurrent reader never sees a
// partial record.
func (s *DirStore) writeHead(record headRecord) error {
	data, err := jsonMarshal(record)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, headFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, headFile))
}

func (s *DirStore) FetchHead(ctx context.Context) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, headFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoRemoteHead
		}
		return "", fmt.Errorf("read head: %w", err)
	}

	var record headRecord
	if err := jsonUnmarshal(data, &record); err != nil {
		return "", fmt.Errorf("decode head: %w", err)
	}
	return record.Ref, nil
}

func (s *DirStore) Pull(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.objectPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unknown remote ref %q", ref)
		}
		return nil, err
	}
	return file, nil
}
