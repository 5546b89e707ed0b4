package syncstate

import "github.com/zerok-sync/sync/wire"

// ConnectionState is one of the five lifecycle states a client connection
// occupies (spec §4.2).
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	Connecting
	Handshaking
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// Status is the machine's full state: the discrete ConnectionState plus the
// state-specific payload (the applied cursor while Connected, the attempt
// count while Reconnecting).
type Status struct {
	State          ConnectionState
	Cursor         wire.Cursor
	ReconnectCount uint32
}

// Event is anything the runtime feeds into the state machine. Exactly one
// of the fields is meaningful, selected by Kind. The runtime is expected to
// have already decoded any wire envelope before constructing an Event, so
// that this package stays free of wire-format knowledge beyond the handful
// of identifier types it borrows.
type Event struct {
	Kind EventKind

	// ConnectRequested, ReconnectTimer: no payload.
	// ConnectSucceeded: no payload (handshake starts next).
	// ConnectFailed: no payload.
	// HandshakeCompleted: Cursor is the peer's reported max cursor.
	Cursor wire.Cursor

	// MessageReceived: MessageType selects which of the remaining fields
	// apply (PushAck -> BlobID; Notify -> Cursor).
	MessageType wire.MessageType
	BlobID      wire.BlobID

	// Disconnected carries a human-readable reason.
	Reason string
}

// EventKind enumerates the inputs the state machine accepts.
type EventKind uint8

const (
	EventConnectRequested EventKind = iota
	EventConnectSucceeded
	EventConnectFailed
	EventHandshakeCompleted
	EventMessageReceived
	EventDisconnected
	EventReconnectTimer
)

// ActionKind enumerates the side effects a transition can emit. The runtime
// executes these; the state machine itself never performs them.
type ActionKind uint8

const (
	ActionConnect ActionKind = iota
	ActionSendHello
	ActionStartReconnectTimer
	ActionEmitConnected
	ActionEmitDisconnected
	ActionEmitBlobPushed
	ActionEmitBlobAvailable
	ActionFlushPendingPushes
	ActionAckPendingPush
)

// Action is one side effect emitted by a transition.
type Action struct {
	Type ActionKind
	// Delay is populated for ActionStartReconnectTimer.
	Delay float64 // seconds
	// BlobID is populated for ActionAckPendingPush/ActionEmitBlobPushed.
	BlobID wire.BlobID
	// Cursor is populated for ActionEmitBlobAvailable.
	Cursor wire.Cursor
}
