package remote

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore_PushPullRoundTrip(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	payload := []byte("not really a tarball, but the store does not care")
	ref, err := store.Push(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	head, err := store.FetchHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ref, head)

	rc, err := store.Pull(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDirStore_EmptyMirrorHasNoHead(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.FetchHead(context.Background())
	assert.ErrorIs(t, err, ErrNoRemoteHead)
}

func TestDirStore_HeadAdvancesButOldRefsStay(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Push(ctx, bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	second, err := store.Push(ctx, bytes.NewReader([]byte("two")))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	head, err := store.FetchHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, head)

	// the overwritten head remains retrievable by ref
	rc, err := store.Pull(ctx, first)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}

func TestDirStore_PullUnknownRef(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Pull(context.Background(), Ref("no-such-ref"))
	assert.Error(t, err)
}
