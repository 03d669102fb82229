package offline_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabedit/internal/offline"
)

func TestFileStore_SaveThenLoad_RoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := offline.NewFileStore(dir)

	state := offline.OfflineState{
		DocumentID: "doc-1",
		Operations: []offline.QueuedOperation{
			{ID: "op-1", LocalTimestamp: time.Now().Truncate(time.Second), RetryCount: 1, MaxRetries: 3},
		},
		LastSyncVersion: 7,
		IsOffline:       true,
		LastSyncTime:    time.Now().Truncate(time.Second),
	}

	require.NoError(t, store.Save("doc-1", state))

	loaded, err := store.Load("doc-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, state.DocumentID, loaded.DocumentID)
	assert.Equal(t, state.LastSyncVersion, loaded.LastSyncVersion)
	assert.Equal(t, state.IsOffline, loaded.IsOffline)
	require.Len(t, loaded.Operations, 1)
	assert.Equal(t, "op-1", loaded.Operations[0].ID)
	assert.True(t, state.Operations[0].LocalTimestamp.Equal(loaded.Operations[0].LocalTimestamp))
}

func TestFileStore_Load_MissingFile_ReturnsNilNil(t *testing.T) {
	t.Parallel()

	store := offline.NewFileStore(t.TempDir())

	loaded, err := store.Load("never-saved")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStore_Load_CorruptFile_TreatedAsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := offline.NewFileStore(dir)

	require.NoError(t, store.Save("doc-1", offline.OfflineState{DocumentID: "doc-1"}))

	path := dir + "/offline_operations_doc-1.json"
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	loaded, err := store.Load("doc-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStore_SaveThenLoad_DefensiveCopy(t *testing.T) {
	t.Parallel()

	store := offline.NewMemoryStore()
	state := offline.OfflineState{
		DocumentID: "doc-1",
		Operations: []offline.QueuedOperation{{ID: "op-1"}},
	}

	require.NoError(t, store.Save("doc-1", state))

	// Mutating the caller's slice after Save must not affect the stored copy.
	state.Operations[0].ID = "mutated"

	loaded, err := store.Load("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "op-1", loaded.Operations[0].ID)
}

func TestMemoryStore_Load_UnknownDocument(t *testing.T) {
	t.Parallel()

	store := offline.NewMemoryStore()
	loaded, err := store.Load("missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
