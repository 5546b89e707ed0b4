package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerok-sync/sync/wire"
)

func TestPendingBufferEnqueueDequeueAck(t *testing.T) {
	buf := NewPendingBuffer(0)
	p1 := PendingPush{BlobID: wire.NewBlobID(), Plaintext: []byte("one")}
	p2 := PendingPush{BlobID: wire.NewBlobID(), Plaintext: []byte("two")}

	require.NoError(t, buf.Enqueue(p1))
	require.NoError(t, buf.Enqueue(p2))
	assert.Equal(t, 2, buf.Len())

	got, ok := buf.Dequeue()
	require.True(t, ok)
	assert.Equal(t, p1.BlobID, got.BlobID)
	assert.True(t, buf.IsPending(p1.BlobID), "dequeue does not remove the entry")

	buf.Ack(p1.BlobID)
	assert.False(t, buf.IsPending(p1.BlobID))
	assert.Equal(t, 1, buf.Len())
}

func TestPendingBufferAckMissingIsNoOp(t *testing.T) {
	buf := NewPendingBuffer(0)
	buf.Ack(wire.NewBlobID())
	assert.Equal(t, 0, buf.Len())
}

func TestPendingBufferRejectsWhenFull(t *testing.T) {
	buf := NewPendingBuffer(1)
	require.NoError(t, buf.Enqueue(PendingPush{BlobID: wire.NewBlobID()}))

	err := buf.Enqueue(PendingPush{BlobID: wire.NewBlobID()})
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestPendingBufferEnqueueDuplicateBlobIDIsIdempotent(t *testing.T) {
	buf := NewPendingBuffer(0)
	id := wire.NewBlobID()
	require.NoError(t, buf.Enqueue(PendingPush{BlobID: id, Plaintext: []byte("a")}))
	require.NoError(t, buf.Enqueue(PendingPush{BlobID: id, Plaintext: []byte("b")}))
	assert.Equal(t, 1, buf.Len())
}

func TestPendingBufferSnapshotForRetryPreservesOrderAndResendability(t *testing.T) {
	buf := NewPendingBuffer(0)
	p1 := PendingPush{BlobID: wire.NewBlobID()}
	p2 := PendingPush{BlobID: wire.NewBlobID()}
	require.NoError(t, buf.Enqueue(p1))
	require.NoError(t, buf.Enqueue(p2))

	_, _ = buf.Dequeue()
	_, _ = buf.Dequeue()
	_, ok := buf.Dequeue()
	assert.False(t, ok, "no more undequeued entries")

	snapshot := buf.SnapshotForRetry()
	require.Len(t, snapshot, 2)
	assert.Equal(t, p1.BlobID, snapshot[0].BlobID)
	assert.Equal(t, p2.BlobID, snapshot[1].BlobID)

	got, ok := buf.Dequeue()
	require.True(t, ok)
	assert.Equal(t, p1.BlobID, got.BlobID)
}
