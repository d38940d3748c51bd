package remote

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/utils"
)

// WriteArchive packs the files listed in m, rooted at root, into a gzipped
// tar stream. Only manifest-listed files are included, so the payload is
// exactly the snapshot content.
func WriteArchive(w io.Writer, root string, m manifest.Manifest) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, relPath := range m.Paths() {
		if err := addFile(tw, root, relPath); err != nil {
			return fmt.Errorf("archive %s: %w", relPath, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addFile(tw *tar.Writer, root, relPath string) error {
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = relPath
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	file, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(tw, file)
	return err
}

// ExtractArchive unpacks a payload stream into dest. Entries escaping dest
// are rejected.
func ExtractArchive(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("payload gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("payload tar: %w", err)
		}

		name := utils.NormPath(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") {
			return fmt.Errorf("payload entry escapes destination: %s", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := utils.EnsureDir(target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := utils.EnsureParent(target); err != nil {
				return err
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(file, tr); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
		default:
			// symlinks and specials are not part of snapshot payloads
			continue
		}
	}
}
