package remote

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_RecordAndLookup(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "backups.db"))
	require.NoError(t, err)
	defer journal.Close()

	require.NoError(t, journal.Record(Ref("ref-1"), "snap-1"))

	has, err := journal.Has(Ref("ref-1"))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = journal.Has(Ref("ref-2"))
	require.NoError(t, err)
	assert.False(t, has)

	rec, err := journal.Get(Ref("ref-1"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "snap-1", rec.SnapshotID)
	assert.NotEmpty(t, rec.MachineID)
	assert.False(t, rec.PushedAt.IsZero())

	rec, err = journal.Get(Ref("ref-2"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backups.db")

	journal, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, journal.Record(Ref("ref-1"), "snap-1"))
	require.NoError(t, journal.Close())

	reopened, err := OpenJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	has, err := reopened.Has(Ref("ref-1"))
	require.NoError(t, err)
	assert.True(t, has)
}
