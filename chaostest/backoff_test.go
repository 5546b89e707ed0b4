package chaostest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerok-sync/sync/syncstate"
	"github.com/zerok-sync/sync/wire"
)

// TestReconnectJitterSpread checks that 100 independent trackers computing
// their first reconnect delay spread across a window of at least 2 seconds
// (spec §8: thundering-herd mitigation). A fixed seed keeps the check
// deterministic rather than an occasionally-flaky random draw.
func TestReconnectJitterSpread(t *testing.T) {
	const n = 100
	params := syncstate.DefaultBackoffParams
	rng := rand.New(rand.NewSource(7))

	delays := make([]float64, n)
	for i := 0; i < n; i++ {
		base := params.BaseDelay(1)
		delays[i] = params.AddJitter(base, rng.Float64())
	}

	min, max := delays[0], delays[0]
	for _, d := range delays[1:] {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	require.GreaterOrEqual(t, max-min, 2.0, "100 independently jittered reconnect delays must spread over at least a 2s window")
}

// TestAckOnAbsentBlobIsNoop checks ack(blob_id) on a buffer that does not
// contain blob_id is a no-op (spec §8 round-trip/idempotence laws).
func TestAckOnAbsentBlobIsNoop(t *testing.T) {
	buf := syncstate.NewPendingBuffer(syncstate.DefaultMaxPending)
	push := syncstate.PendingPush{BlobID: wire.BlobID{1, 2, 3}, Plaintext: []byte("hello")}
	require.NoError(t, buf.Enqueue(push))
	require.Equal(t, 1, buf.Len())

	buf.Ack(wire.BlobID{9, 9, 9})
	require.Equal(t, 1, buf.Len(), "acking an unknown blob id must not remove anything")

	buf.Ack(push.BlobID)
	require.Equal(t, 0, buf.Len())

	buf.Ack(push.BlobID)
	require.Equal(t, 0, buf.Len(), "acking an already-acked blob id a second time must stay a no-op")
}
