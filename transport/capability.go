package transport

import (
	"context"
	"errors"
)

// NodeID identifies a transport endpoint: a relay or a device, addressed
// by the same 32 bytes as its long-term public key.
type NodeID [32]byte

// ErrTransportClosed is the error a Capability returns from Send/Recv on a
// stream that has been closed. InProcessTransport does not return it after
// Disconnect: a later Recv from that peer waits on a fresh, empty inbox.
var ErrTransportClosed = errors.New("transport closed")

// Capability is the narrow collaborator interface the sync engine consumes
// (spec §6.1, §9 "Dynamic dispatch"). It carries opaque byte frames —
// Noise handshake messages, then encrypted session frames — with reliable,
// in-order delivery between two endpoints. NAT traversal, discovery, and
// QUIC-specific concerns live entirely on the other side of this
// interface.
type Capability interface {
	// Connect establishes a stream to peer, blocking until the underlying
	// connection is ready for Send/Recv or ctx is done.
	Connect(ctx context.Context, peer NodeID) error

	// Disconnect tears down the stream to peer. Calling it more than once,
	// or on a peer never connected, is not an error.
	Disconnect(peer NodeID) error

	// Send writes one opaque frame to peer. Frame boundaries are
	// preserved: a single Send corresponds to exactly one Recv on the
	// other end.
	Send(ctx context.Context, peer NodeID, frame []byte) error

	// Recv blocks until a frame arrives from peer, ctx is done, or the
	// transport is closed.
	Recv(ctx context.Context, peer NodeID) ([]byte, error)

	// LocalNodeID returns this endpoint's own identity.
	LocalNodeID() NodeID
}
