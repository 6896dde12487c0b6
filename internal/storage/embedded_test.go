package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbeddedStore(t *testing.T) *EmbeddedStore {
	t.Helper()
	store, err := NewEmbeddedStore(filepath.Join(t.TempDir(), "docchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmbeddedStore_SessionsWholesale(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	// A never-written store yields an empty list.
	sessions, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	first := []*Session{
		{ID: "a", Title: "A", LastUpdated: 100},
		{ID: "b", Title: "B", LastUpdated: 200},
	}
	require.NoError(t, store.SaveAll(ctx, first))

	// Every save overwrites the whole list.
	second := []*Session{{ID: "c", Title: "C", LastUpdated: 300, Messages: []Message{
		{ID: "m", Role: RoleUser, Content: "hey", Timestamp: 1},
	}}}
	require.NoError(t, store.SaveAll(ctx, second))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
	require.Len(t, got[0].Messages, 1)
	assert.Equal(t, "hey", got[0].Messages[0].Content)
}

func TestEmbeddedStore_BinaryLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	payload := []byte("%PDF-1.4 payload bytes")
	require.NoError(t, store.SaveBinary(ctx, "sess", payload))

	got, err := store.LoadBinary(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Replacement is a full overwrite.
	require.NoError(t, store.SaveBinary(ctx, "sess", []byte("v2")))
	got, err = store.LoadBinary(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.DeleteBinary(ctx, "sess"))
	_, err = store.LoadBinary(ctx, "sess")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, store.DeleteBinary(ctx, "sess"))
}

func TestEmbeddedStore_MissingBlobIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	// Metadata referencing a document whose blob was never stored (or was
	// evicted) must load fine; only the payload lookup reports absence.
	require.NoError(t, store.SaveAll(ctx, []*Session{
		{ID: "s", Title: "S", DocumentName: "gone.pdf", LastUpdated: 1},
	}))

	sessions, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].HasDocument())

	_, err = store.LoadBinary(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmbeddedStore_Settings(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	got, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "first run has no settings")

	settings := &Settings{
		Provider:    "anthropic",
		Model:       "some-model",
		Temperature: 0.9,
		StorageMode: StorageModeEmbedded,
		Image:       ImageConfig{Enabled: true, Model: "img-model"},
	}
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err = store.LoadSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, settings, got)
}

func TestEmbeddedStore_SelectedSession(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	id, err := store.LoadSelected(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.SaveSelected(ctx, "chosen"))
	id, err = store.LoadSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chosen", id)
}

func TestEmbeddedStore_HandleSingleRow(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	_, ok, err := store.LoadHandle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := DirectoryHandle{Path: "/tmp/one", DisplayName: "one", GrantedAt: 111}
	require.NoError(t, store.SaveHandle(ctx, first))

	// Persisting a new handle replaces the old one; only one directory is
	// tracked at a time.
	second := DirectoryHandle{Path: "/tmp/two", DisplayName: "two", GrantedAt: 222}
	require.NoError(t, store.SaveHandle(ctx, second))

	got, ok, err := store.LoadHandle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)

	require.NoError(t, store.DeleteHandle(ctx))
	_, ok, err = store.LoadHandle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddedStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestEmbeddedStore(t)

	require.NoError(t, store.SaveAll(ctx, []*Session{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, store.SaveBinary(ctx, "a", []byte("12345")))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["sessions"])
	assert.Equal(t, 1, stats["document_blobs"])
	assert.Equal(t, int64(5), stats["document_bytes"])
}
