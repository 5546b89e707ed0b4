package syncstate

import (
	"errors"

	"github.com/zerok-sync/sync/wire"
)

// ErrBufferFull is returned by Enqueue once the buffer holds MaxPending
// entries.
var ErrBufferFull = errors.New("pending buffer full")

// DefaultMaxPending bounds the pending-push buffer's depth.
const DefaultMaxPending = 1000

// PendingPush is one locally-originated push awaiting relay
// acknowledgment.
type PendingPush struct {
	BlobID     wire.BlobID
	Plaintext  []byte
	TTLSeconds uint64
	EnqueuedAt int64 // unix seconds, informational only
}

// PendingBuffer is a bounded FIFO of pushes awaiting acknowledgment (spec
// §4.2). It performs no I/O; persistence across process restarts is the
// client runtime's responsibility, by snapshotting and restoring this
// structure's contents.
type PendingBuffer struct {
	order    []wire.BlobID
	entries  map[wire.BlobID]PendingPush
	dequeued map[wire.BlobID]bool
	maxSize  int
}

// NewPendingBuffer creates an empty buffer bounded at maxSize entries.
func NewPendingBuffer(maxSize int) *PendingBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxPending
	}
	return &PendingBuffer{
		entries:  make(map[wire.BlobID]PendingPush),
		dequeued: make(map[wire.BlobID]bool),
		maxSize:  maxSize,
	}
}

// Dequeue returns the oldest not-yet-dequeued push and marks it dequeued;
// it remains owned by the buffer (not removed) until Ack is called. Returns
// false if every pending push has already been dequeued.
func (b *PendingBuffer) Dequeue() (PendingPush, bool) {
	for _, id := range b.order {
		if b.dequeued[id] {
			continue
		}
		b.dequeued[id] = true
		return b.entries[id], true
	}
	return PendingPush{}, false
}

// Enqueue appends push if the buffer is not full.
func (b *PendingBuffer) Enqueue(push PendingPush) error {
	if len(b.order) >= b.maxSize {
		return ErrBufferFull
	}
	if _, exists := b.entries[push.BlobID]; exists {
		return nil
	}
	b.order = append(b.order, push.BlobID)
	b.entries[push.BlobID] = push
	return nil
}

// Ack removes the pending record for blobID. Acking an absent id is a
// no-op (spec §8 idempotence law).
func (b *PendingBuffer) Ack(blobID wire.BlobID) {
	if _, ok := b.entries[blobID]; !ok {
		return
	}
	delete(b.entries, blobID)
	delete(b.dequeued, blobID)
	for i, id := range b.order {
		if id == blobID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// IsPending reports whether blobID still awaits acknowledgment.
func (b *PendingBuffer) IsPending(blobID wire.BlobID) bool {
	_, ok := b.entries[blobID]
	return ok
}

// Len returns the number of pending entries.
func (b *PendingBuffer) Len() int {
	return len(b.order)
}

// SnapshotForRetry returns every pending push in original enqueue order for
// resending after a reconnect, and resets their dequeued marker so the
// normal send path will pick them up again via Dequeue.
func (b *PendingBuffer) SnapshotForRetry() []PendingPush {
	out := make([]PendingPush, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id])
		delete(b.dequeued, id)
	}
	return out
}
