package content

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerok-sync/sync/wire"
)

func testHash(b byte) wire.ContentHash {
	var h wire.ContentHash
	h[0] = b
	return h
}

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	hash := testHash(1)

	assert.False(t, store.Has(hash))
	require.NoError(t, store.Put(hash, []byte("payload")))
	assert.True(t, store.Has(hash))

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestMemoryStoreGetMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(testHash(9))
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	hash := testHash(2)
	require.NoError(t, store.Put(hash, []byte("x")))
	require.NoError(t, store.Delete(hash))
	require.NoError(t, store.Delete(hash))
	assert.False(t, store.Has(hash))
}

func TestDiskStorePutGetRoundTrip(t *testing.T) {
	store, err := NewDiskStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	hash := testHash(3)
	require.NoError(t, store.Put(hash, []byte("disk payload")))
	assert.True(t, store.Has(hash))

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("disk payload"), got)

	require.NoError(t, store.Delete(hash))
	assert.False(t, store.Has(hash))
}

func TestDiskStoreGetMissingReturnsNotFound(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(testHash(4))
	assert.ErrorIs(t, err, ErrContentNotFound)
}
