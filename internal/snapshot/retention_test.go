package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createN(t *testing.T, store *Store, root string, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		writeFile(t, root, "main.py", fmt.Sprintf("print(%d)\n", i))
		snap, err := store.Create(context.Background(), buildManifest(t, root), fmt.Sprintf("v%d", i+1))
		require.NoError(t, err)
		ids = append(ids, snap.ID)
		time.Sleep(5 * time.Millisecond)
	}
	return ids
}

func TestEnforceRetention_BoundHoldsAfterEveryCreate(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	const limit = 3
	for i := 0; i < 5; i++ {
		writeFile(t, root, "main.py", fmt.Sprintf("print(%d)\n", i))
		_, err := store.Create(context.Background(), buildManifest(t, root), "")
		require.NoError(t, err)
		_, err = store.EnforceRetention(limit, nil)
		require.NoError(t, err)

		snaps, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, min(i+1, limit), len(snaps))
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnforceRetention_EvictsOldestFirst(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	ids := createN(t, store, root, 5)

	evicted, err := store.EnforceRetention(3, nil)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], evicted)

	snaps, err := store.List()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, snap := range snaps {
		assert.Equal(t, ids[i+2], snap.ID)
	}

	// snapshots 1 and 2 are unrecoverable
	for _, id := range ids[:2] {
		_, err := store.Get(id)
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestEnforceRetention_Idempotent(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	createN(t, store, root, 4)

	first, err := store.EnforceRetention(3, nil)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := store.EnforceRetention(3, nil)
	require.NoError(t, err)
	assert.Empty(t, second, "no further eviction without a new snapshot")
}

func TestEnforceRetention_ProtectionSkipsAndReportsViolation(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	ids := createN(t, store, root, 4)
	protected := map[string]bool{ids[0]: true}

	// oldest is protected: the next oldest goes instead, bound still reached
	evicted, err := store.EnforceRetention(3, protected)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, evicted)

	// protect everything: bound cannot be reached, violation is reported
	all := map[string]bool{}
	for _, id := range ids {
		all[id] = true
	}
	createN(t, store, root, 1)
	all["extra"] = true

	snaps, err := store.List()
	require.NoError(t, err)
	for _, snap := range snaps {
		all[snap.ID] = true
	}

	_, err = store.EnforceRetention(3, all)
	var violation *RetentionViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, 3, violation.Limit)
	assert.Greater(t, violation.Count, violation.Limit)
}
