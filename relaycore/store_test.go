package relaycore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerok-sync/sync/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testGroup(b byte) wire.GroupID {
	var g wire.GroupID
	g[0] = b
	return g
}

func testDevice(b byte) wire.DeviceID {
	var d wire.DeviceID
	d[0] = b
	return d
}

func testBlobID(b byte) wire.BlobID {
	var id wire.BlobID
	id[0] = b
	return id
}

func TestAppendBlobAssignsSequentialCursors(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	sender := testDevice(1)

	c1, err := store.AppendBlob(group, testBlobID(1), sender, [24]byte{}, []byte("a"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, wire.Cursor(1), c1)

	c2, err := store.AppendBlob(group, testBlobID(2), sender, [24]byte{}, []byte("b"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, wire.Cursor(2), c2)
}

func TestAppendBlobDuplicateIsNoOp(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	sender := testDevice(1)
	blobID := testBlobID(1)

	first, err := store.AppendBlob(group, blobID, sender, [24]byte{}, []byte("a"), time.Hour)
	require.NoError(t, err)

	second, err := store.AppendBlob(group, blobID, sender, [24]byte{}, []byte("a-resend"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first, second, "duplicate push must return original cursor")

	blobs, _, _, err := store.BlobsAfter(group, 0, 10)
	require.NoError(t, err)
	assert.Len(t, blobs, 1)
}

func TestBlobsAfterOrdersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	sender := testDevice(1)

	for i := byte(1); i <= 5; i++ {
		_, err := store.AppendBlob(group, testBlobID(i), sender, [24]byte{}, []byte{i}, time.Hour)
		require.NoError(t, err)
	}

	blobs, maxCursor, hasMore, err := store.BlobsAfter(group, 0, 3)
	require.NoError(t, err)
	require.Len(t, blobs, 3)
	assert.Equal(t, wire.Cursor(1), blobs[0].Cursor)
	assert.Equal(t, wire.Cursor(3), maxCursor)
	assert.True(t, hasMore)

	rest, _, hasMore, err := store.BlobsAfter(group, 3, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.False(t, hasMore)
}

func TestRevokeDeviceClearsMembershipAndDeliveries(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	device := testDevice(2)

	require.NoError(t, store.RegisterDevice(group, device))
	require.NoError(t, store.RecordDelivery(testBlobID(1), device))

	require.NoError(t, store.RevokeDevice(device, group, "left group"))

	revoked, err := store.IsRevoked(device, group)
	require.NoError(t, err)
	assert.True(t, revoked)

	devices, err := store.GroupDevices(group)
	require.NoError(t, err)
	assert.NotContains(t, devices, device)
}

func TestFullyDeliveredRequiresEveryNonRevokedDevice(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	sender, a, b := testDevice(9), testDevice(1), testDevice(2)
	blobID := testBlobID(1)

	require.NoError(t, store.RegisterDevice(group, sender))
	require.NoError(t, store.RegisterDevice(group, a))
	require.NoError(t, store.RegisterDevice(group, b))
	require.NoError(t, store.RecordDelivery(blobID, a))

	delivered, err := store.FullyDelivered(group, sender, blobID)
	require.NoError(t, err)
	assert.False(t, delivered)

	require.NoError(t, store.RecordDelivery(blobID, b))
	delivered, err = store.FullyDelivered(group, sender, blobID)
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestGroupStorageBytesSumsPayloadSizes(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	sender := testDevice(1)

	_, err := store.AppendBlob(group, testBlobID(1), sender, [24]byte{}, make([]byte, 100), time.Hour)
	require.NoError(t, err)
	_, err = store.AppendBlob(group, testBlobID(2), sender, [24]byte{}, make([]byte, 50), time.Hour)
	require.NoError(t, err)

	total, err := store.GroupStorageBytes(group)
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
}

func TestCleanupExpiredRemovesOnlyExpiredBlobs(t *testing.T) {
	store := newTestStore(t)
	group := testGroup(1)
	sender := testDevice(1)

	_, err := store.AppendBlob(group, testBlobID(1), sender, [24]byte{}, []byte("expired"), -time.Hour)
	require.NoError(t, err)
	_, err = store.AppendBlob(group, testBlobID(2), sender, [24]byte{}, []byte("alive"), time.Hour)
	require.NoError(t, err)

	n, err := store.CleanupExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	blobs, _, _, err := store.BlobsAfter(group, 0, 10)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, testBlobID(2), blobs[0].BlobID)
}
