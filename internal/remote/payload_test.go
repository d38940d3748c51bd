package remote

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbox/snapbox/internal/manifest"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func buildManifest(t *testing.T, root string) manifest.Manifest {
	t.Helper()
	b, err := manifest.NewBuilder(root, nil)
	require.NoError(t, err)
	m, err := b.Build(context.Background())
	require.NoError(t, err)
	return m
}

func TestArchive_RoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "main.py", "print('hello')\n")
	writeFile(t, src, "lib/deep/util.py", "x = 1\n")
	writeFile(t, src, "data.csv", "a,b\n1,2\n")

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, src, buildManifest(t, src)))

	dest := t.TempDir()
	require.NoError(t, ExtractArchive(&buf, dest))

	assert.Equal(t, "print('hello')\n", readFile(t, dest, "main.py"))
	assert.Equal(t, "x = 1\n", readFile(t, dest, "lib/deep/util.py"))
	assert.Equal(t, "a,b\n1,2\n", readFile(t, dest, "data.csv"))
}

func TestArchive_OnlyManifestFilesIncluded(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "keep.txt", "kept")
	writeFile(t, src, "skip.txt", "skipped")

	m := buildManifest(t, src)
	delete(m, "skip.txt")

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, src, m))

	dest := t.TempDir()
	require.NoError(t, ExtractArchive(&buf, dest))

	assert.FileExists(t, filepath.Join(dest, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "skip.txt"))
}

func TestExtractArchive_RejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "../evil.txt",
		Mode: 0o644,
		Size: int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dest := t.TempDir()
	err = ExtractArchive(&buf, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
}

func TestExtractArchive_SkipsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dest := t.TempDir()
	require.NoError(t, ExtractArchive(&buf, dest))
	assert.NoFileExists(t, filepath.Join(dest, "link"))
}
