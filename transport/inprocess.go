package transport

import (
	"context"
	"fmt"
	"sync"
)

const inProcessInboxDepth = 256

// Network is a shared in-memory hub that InProcessTransport endpoints
// register against, so tests can wire up a relay and several clients
// without any real sockets.
type Network struct {
	mu    sync.Mutex
	nodes map[NodeID]*InProcessTransport
}

// NewNetwork creates an empty hub.
func NewNetwork() *Network {
	return &Network{nodes: make(map[NodeID]*InProcessTransport)}
}

// NewEndpoint creates and registers a transport for id on this network.
// Registering the same id twice replaces the previous endpoint.
func (n *Network) NewEndpoint(id NodeID) *InProcessTransport {
	t := &InProcessTransport{
		id:      id,
		network: n,
		inbox:   make(map[NodeID]chan []byte),
	}
	n.mu.Lock()
	n.nodes[id] = t
	n.mu.Unlock()
	return t
}

func (n *Network) lookup(id NodeID) (*InProcessTransport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.nodes[id]
	return t, ok
}

// InProcessTransport is an in-memory Capability implementation: every Send
// to a registered peer is delivered via a buffered Go channel, giving
// reliable in-order delivery with no real I/O. It implements Capability.
type InProcessTransport struct {
	id      NodeID
	network *Network

	mu     sync.Mutex
	inbox  map[NodeID]chan []byte
	closed bool
}

var _ Capability = (*InProcessTransport)(nil)

func (t *InProcessTransport) LocalNodeID() NodeID {
	return t.id
}

func (t *InProcessTransport) inboxFor(peer NodeID) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.inbox[peer]
	if !ok {
		ch = make(chan []byte, inProcessInboxDepth)
		t.inbox[peer] = ch
	}
	return ch
}

// Connect allocates the inbox this endpoint will receive peer's frames on.
// There is no handshake at this layer; Connect succeeds as soon as peer is
// registered on the same Network.
func (t *InProcessTransport) Connect(ctx context.Context, peer NodeID) error {
	if _, ok := t.network.lookup(peer); !ok {
		return fmt.Errorf("in-process transport: peer %x not registered", peer)
	}
	t.inboxFor(peer)
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Disconnect drops this endpoint's inbox for peer. Frames already in
// flight are discarded.
func (t *InProcessTransport) Disconnect(peer NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inbox, peer)
	return nil
}

// Send delivers frame to peer's inbox for this endpoint's id.
func (t *InProcessTransport) Send(ctx context.Context, peer NodeID, frame []byte) error {
	peerTransport, ok := t.network.lookup(peer)
	if !ok {
		return fmt.Errorf("in-process transport: peer %x not registered", peer)
	}

	dst := peerTransport.inboxFor(t.id)
	payload := append([]byte(nil), frame...)
	select {
	case dst <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next frame peer sent to this endpoint.
func (t *InProcessTransport) Recv(ctx context.Context, peer NodeID) ([]byte, error) {
	ch := t.inboxFor(peer)
	select {
	case frame, ok := <-ch:
		if !ok {
			return nil, ErrTransportClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
