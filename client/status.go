package client

import (
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// ConnectionStatus is the four-state user-visible indicator (spec §7),
// derived from state-machine events rather than polled.
type ConnectionStatus uint8

const (
	// StatusOffline means no active session.
	StatusOffline ConnectionStatus = iota
	// StatusSynced means all local writes have been acknowledged.
	StatusSynced
	// StatusPending means local writes exist that have not been
	// acknowledged yet.
	StatusPending
	// StatusFailed means a recent push failed but will be retried.
	StatusFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusSynced:
		return "synced"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionInfo is returned by Connect: the relay identity and the
// current max cursor it reported in Welcome.
type ConnectionInfo struct {
	RelayNodeID transport.NodeID
	MaxCursor   wire.Cursor
}

// EventKind enumerates the event stream's variants (spec §4.3: Connected |
// Disconnected | BlobAvailable | BlobPushed | Error | StatusChanged, plus
// the content side channel's ContentAvailable | ContentReceived |
// ContentAcked).
type EventKind uint8

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventBlobAvailable
	EventBlobPushed
	EventError
	EventStatusChanged
	// EventContentAvailable fires when a ContentRef arrives describing a
	// large-content blob this device does not yet hold.
	EventContentAvailable
	// EventContentReceived fires once a ContentRef's ciphertext has been
	// fetched, chunk-verified, and decrypted.
	EventContentReceived
	// EventContentAcked fires when a recipient's ContentAck for a pushed
	// content blob arrives.
	EventContentAcked
)

// Event is one item in the Subscribe stream. Exactly the fields relevant to
// Kind are populated.
type Event struct {
	Kind EventKind

	Cursor      wire.Cursor      // BlobAvailable
	BlobID      wire.BlobID      // BlobPushed, ContentAvailable, ContentReceived, ContentAcked
	ContentHash wire.ContentHash // ContentAvailable, ContentReceived, ContentAcked
	Plaintext   []byte           // ContentReceived
	Err         error            // Error
	Status      ConnectionStatus // StatusChanged
	Reason      string           // Disconnected
}
