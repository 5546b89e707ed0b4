package relaycore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerok-sync/sync/wake"
	"github.com/zerok-sync/sync/wire"
)

func newTestRelay(t *testing.T) (*Relay, *Store) {
	t.Helper()
	store := newTestStore(t)
	return NewRelay(store, wake.NoopNotifier{}), store
}

func TestTwoDeviceBasicScenario(t *testing.T) {
	ctx := context.Background()
	relay, store := newTestRelay(t)
	group := testGroup(1)
	a, b := testDevice(1), testDevice(2)

	_, err := relay.OnHello(ctx, group, a, wire.Hello{LastCursor: 0})
	require.NoError(t, err)
	_, err = relay.OnHello(ctx, group, b, wire.Hello{LastCursor: 0})
	require.NoError(t, err)

	pushResult, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, wire.Cursor(1), pushResult.Cursor)

	pullResult, err := relay.OnPull(ctx, group, b, 0, 100)
	require.NoError(t, err)
	require.Len(t, pullResult.Blobs, 1)
	assert.Equal(t, wire.Cursor(1), pullResult.Blobs[0].Cursor)
	assert.Equal(t, []byte("hello"), pullResult.Blobs[0].Payload)
	assert.False(t, pullResult.HasMore)

	require.NoError(t, relay.OnDelete(ctx, a, testBlobID(1), false))
	_, err = store.BlobGroup(testBlobID(1))
	assert.Error(t, err, "blob should be gone after both devices acked")
}

func TestOfflineDeliveryScenario(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a, b := testDevice(1), testDevice(2)

	_, err := relay.OnHello(ctx, group, a, wire.Hello{LastCursor: 0})
	require.NoError(t, err)
	_, err = relay.OnHello(ctx, group, b, wire.Hello{LastCursor: 0})
	require.NoError(t, err)

	for i := byte(1); i <= 3; i++ {
		_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(i), [24]byte{}, []byte{i}, 0)
		require.NoError(t, err)
	}

	result, err := relay.OnHello(ctx, group, b, wire.Hello{LastCursor: 0})
	require.NoError(t, err)
	assert.Equal(t, wire.Cursor(3), result.Welcome.MaxCursor)
	assert.Equal(t, uint32(3), result.Welcome.PendingCount)
	assert.Len(t, result.Notifies, 3)

	pullResult, err := relay.OnPull(ctx, group, b, 0, 100)
	require.NoError(t, err)
	require.Len(t, pullResult.Blobs, 3)
	assert.Equal(t, wire.Cursor(1), pullResult.Blobs[0].Cursor)
	assert.Equal(t, wire.Cursor(3), pullResult.Blobs[2].Cursor)
}

func TestRevocationScenario(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a, b, c := testDevice(1), testDevice(2), testDevice(3)

	for _, d := range []wire.DeviceID{a, b, c} {
		_, err := relay.OnHello(ctx, group, d, wire.Hello{LastCursor: 0})
		require.NoError(t, err)
	}

	// c is offline so a blob whose only pending recipient is c gets orphaned.
	require.NoError(t, relay.store.SetDeviceOnline(group, c, false))
	_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, []byte("x"), 0)
	require.NoError(t, err)

	_, err = relay.OnPull(ctx, group, a, 0, 100)
	require.NoError(t, err)
	_, err = relay.OnPull(ctx, group, b, 0, 100)
	require.NoError(t, err)

	require.NoError(t, relay.OnRevokeDevice(ctx, group, c, "left the group"))

	_, err = relay.store.BlobGroup(testBlobID(1))
	assert.Error(t, err, "blob pending only for the revoked device should be evicted")

	_, err = relay.OnHello(ctx, group, c, wire.Hello{LastCursor: 0})
	assert.ErrorIs(t, err, ErrDeviceRevoked)

	devices, err := relay.store.GroupDevices(group)
	require.NoError(t, err)
	assert.NotContains(t, devices, c)
}

func TestForceDeleteScenario(t *testing.T) {
	ctx := context.Background()
	relay, store := newTestRelay(t)
	group := testGroup(1)
	a, b := testDevice(1), testDevice(2)

	for _, d := range []wire.DeviceID{a, b} {
		_, err := relay.OnHello(ctx, group, d, wire.Hello{LastCursor: 0})
		require.NoError(t, err)
	}

	_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, []byte("x"), 0)
	require.NoError(t, err)

	err = relay.OnDelete(ctx, b, testBlobID(1), true)
	assert.ErrorIs(t, err, ErrNotBlobOwner)

	require.NoError(t, relay.OnDelete(ctx, a, testBlobID(1), true))

	_, err = store.BlobGroup(testBlobID(1))
	assert.Error(t, err)
}

func TestOnDeleteWithoutForceRequiresFullDelivery(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a, b := testDevice(1), testDevice(2)

	for _, d := range []wire.DeviceID{a, b} {
		_, err := relay.OnHello(ctx, group, d, wire.Hello{LastCursor: 0})
		require.NoError(t, err)
	}
	_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, []byte("x"), 0)
	require.NoError(t, err)

	err = relay.OnDelete(ctx, a, testBlobID(1), false)
	assert.ErrorIs(t, err, ErrBlobNotDeletable)
}

func TestOnPushRejectsOversizeBlob(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a := testDevice(1)

	oversize := make([]byte, 1024*1024+1)
	_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, oversize, 0)
	assert.ErrorIs(t, err, ErrBlobTooLarge)
}

func TestOnPushRejectsInvalidTTL(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a := testDevice(1)

	_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, []byte("x"), math.MaxUint64)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestOnPushRejectsAfterRateLimitExceeded(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a := testDevice(1)

	var lastErr error
	for i := 0; i < 101; i++ {
		_, lastErr = relay.OnPush(ctx, group, a, a.String(), testBlobID(byte(i%250)), [24]byte{}, []byte("x"), 0)
	}
	assert.ErrorIs(t, lastErr, ErrRateLimited)
}

func TestPullAtMaxCursorReturnsEmptyBatch(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a := testDevice(1)

	_, err := relay.OnPush(ctx, group, a, a.String(), testBlobID(1), [24]byte{}, []byte("x"), 0)
	require.NoError(t, err)

	result, err := relay.OnPull(ctx, group, a, 1, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Blobs)
	assert.False(t, result.HasMore)
}

func TestDuplicatePushReturnsOriginalCursor(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	group := testGroup(1)
	a := testDevice(1)
	blobID := testBlobID(1)

	first, err := relay.OnPush(ctx, group, a, a.String(), blobID, [24]byte{}, []byte("x"), 0)
	require.NoError(t, err)

	second, err := relay.OnPush(ctx, group, a, a.String(), blobID, [24]byte{}, []byte("x-resend"), 0)
	require.NoError(t, err)

	assert.Equal(t, first.Cursor, second.Cursor)
}

func TestCleanupRunsWithoutError(t *testing.T) {
	ctx := context.Background()
	relay, _ := newTestRelay(t)
	_, err := relay.RunCleanup(ctx)
	assert.NoError(t, err)
	_ = time.Now()
}
