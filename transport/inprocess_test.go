package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeID(b byte) NodeID {
	var id NodeID
	id[0] = b
	return id
}

func TestInProcessTransportSendRecvRoundTrip(t *testing.T) {
	net := NewNetwork()
	a := net.NewEndpoint(nodeID(1))
	b := net.NewEndpoint(nodeID(2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, a.Connect(ctx, b.LocalNodeID()))
	require.NoError(t, b.Connect(ctx, a.LocalNodeID()))

	require.NoError(t, a.Send(ctx, b.LocalNodeID(), []byte("hello")))
	got, err := b.Recv(ctx, a.LocalNodeID())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestInProcessTransportPreservesOrder(t *testing.T) {
	net := NewNetwork()
	a := net.NewEndpoint(nodeID(1))
	b := net.NewEndpoint(nodeID(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Send(ctx, b.LocalNodeID(), []byte{byte(i)}))
	}
	for i := 0; i < 5; i++ {
		got, err := b.Recv(ctx, a.LocalNodeID())
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, got)
	}
}

func TestInProcessTransportSendToUnregisteredPeerFails(t *testing.T) {
	net := NewNetwork()
	a := net.NewEndpoint(nodeID(1))

	err := a.Send(context.Background(), nodeID(99), []byte("x"))
	assert.Error(t, err)
}

func TestInProcessTransportRecvRespectsContextCancellation(t *testing.T) {
	net := NewNetwork()
	a := net.NewEndpoint(nodeID(1))
	b := net.NewEndpoint(nodeID(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Recv(ctx, b.LocalNodeID())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInProcessTransportDisconnectDropsInbox(t *testing.T) {
	net := NewNetwork()
	a := net.NewEndpoint(nodeID(1))
	b := net.NewEndpoint(nodeID(2))
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, b.LocalNodeID(), []byte("one")))
	require.NoError(t, b.Disconnect(a.LocalNodeID()))

	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := b.Recv(recvCtx, a.LocalNodeID())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
