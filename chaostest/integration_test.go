package chaostest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zerok-sync/sync/client"
	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/relaycore"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wake"
)

// testDeviceClient builds a Client whose transport identity is deterministic
// (the device's own public key), wired into network, ready to Connect to
// relayNode once membership is set.
func testDeviceClient(t *testing.T, network *transport.Network, relayNode transport.NodeID, membership *client.GroupMembership) (*client.Client, transport.NodeID) {
	t.Helper()
	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	store := crypto.NewMemorySecretStore()
	require.NoError(t, store.Put("device-identity-key", keyPair.Private[:]))

	var nodeID transport.NodeID
	copy(nodeID[:], keyPair.Public[:])
	endpoint := network.NewEndpoint(nodeID)

	opts := client.NewOptions()
	opts.SecretStore = store
	opts.Transport = endpoint
	opts.Membership = membership

	c, err := client.New(opts)
	require.NoError(t, err)
	return c, nodeID
}

// newTestRelayServer wires a fresh Relay and Server over a dedicated
// network endpoint, returning the relay's own node id.
func newTestRelayServer(t *testing.T, network *transport.Network) (*relaycore.Server, transport.NodeID) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	store, err := relaycore.NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	relayKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var relayNode transport.NodeID
	copy(relayNode[:], relayKeys.Public[:])

	relay := relaycore.NewRelay(store, wake.NoopNotifier{})
	endpoint := network.NewEndpoint(relayNode)
	server, err := relaycore.NewServer(relay, endpoint, relayKeys.Private)
	require.NoError(t, err)

	return server, relayNode
}

// TestClientRelayEndToEndPushPull exercises the full stack over
// transport.InProcessTransport: two clients' Noise handshakes against a
// real relaycore.Server, a Push from one, and a Pull from the other
// recovering the same plaintext (the first end-to-end scenario in the
// testable-properties section, driven through client.Client rather than
// directly against relaycore.Relay).
func TestClientRelayEndToEndPushPull(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	network := transport.NewNetwork()
	server, relayNode := newTestRelayServer(t, network)

	groupSecret, salt := [32]byte{1, 2, 3}, [crypto.GroupKeySaltSize]byte{4, 5, 6}
	var groupID [32]byte
	groupID[0] = 0xAB
	membership := &client.GroupMembership{
		GroupID:     groupID,
		GroupSecret: groupSecret,
		Salt:        salt,
		RelayNodeID: relayNode,
	}

	a, aNode := testDeviceClient(t, network, relayNode, membership)
	b, bNode := testDeviceClient(t, network, relayNode, membership)
	t.Cleanup(func() { a.Disconnect() })
	t.Cleanup(func() { b.Disconnect() })

	go server.ServeSession(ctx, aNode)
	go server.ServeSession(ctx, bNode)

	_, err := a.Connect(ctx)
	require.NoError(t, err)
	_, err = b.Connect(ctx)
	require.NoError(t, err)

	pushResult, err := a.Push(ctx, []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, client.StatusSynced, a.Status(), "push acknowledged, nothing left pending")

	pullResult, err := b.Pull(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pullResult.Blobs, 1)
	require.Equal(t, []byte("hello"), pullResult.Blobs[0].Plaintext)
	require.Equal(t, pushResult.Cursor, pullResult.Blobs[0].Cursor)
}
