package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerok-sync/sync/wire"
)

func actionTypes(actions []Action) []ActionKind {
	out := make([]ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}

func TestMachineHappyPathToConnected(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	assert.Equal(t, Disconnected, m.Status().State)

	actions := m.Apply(Event{Kind: EventConnectRequested})
	assert.Equal(t, Connecting, m.Status().State)
	assert.Equal(t, []ActionKind{ActionConnect}, actionTypes(actions))

	actions = m.Apply(Event{Kind: EventConnectSucceeded})
	assert.Equal(t, Handshaking, m.Status().State)
	assert.Equal(t, []ActionKind{ActionSendHello}, actionTypes(actions))

	actions = m.Apply(Event{Kind: EventHandshakeCompleted, Cursor: 7})
	assert.Equal(t, Connected, m.Status().State)
	assert.Equal(t, wire.Cursor(7), m.Status().Cursor)
	assert.Equal(t, []ActionKind{ActionEmitConnected, ActionFlushPendingPushes}, actionTypes(actions))
}

func TestMachineConnectFailureEntersReconnecting(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	m.Apply(Event{Kind: EventConnectRequested})

	actions := m.Apply(Event{Kind: EventConnectFailed})
	assert.Equal(t, Reconnecting, m.Status().State)
	assert.Equal(t, uint32(1), m.Status().ReconnectCount)
	assert.Equal(t, []ActionKind{ActionStartReconnectTimer}, actionTypes(actions))
	assert.Equal(t, DefaultBackoffParams.BaseDelay(1), actions[0].Delay)
}

func TestMachineReconnectCounterIncrementsAcrossFailures(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	m.Apply(Event{Kind: EventConnectRequested})
	m.Apply(Event{Kind: EventConnectFailed})

	m.Apply(Event{Kind: EventReconnectTimer})
	assert.Equal(t, Connecting, m.Status().State)

	actions := m.Apply(Event{Kind: EventConnectFailed})
	assert.Equal(t, uint32(2), m.Status().ReconnectCount)
	assert.Equal(t, DefaultBackoffParams.BaseDelay(2), actions[0].Delay)
}

func TestMachineConnectedNotifyAdvancesCursor(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	m.Apply(Event{Kind: EventConnectRequested})
	m.Apply(Event{Kind: EventConnectSucceeded})
	m.Apply(Event{Kind: EventHandshakeCompleted, Cursor: 3})

	actions := m.Apply(Event{Kind: EventMessageReceived, MessageType: wire.TypeNotify, Cursor: 5})
	assert.Equal(t, wire.Cursor(5), m.Status().Cursor)
	assert.Equal(t, []ActionKind{ActionEmitBlobAvailable}, actionTypes(actions))
	assert.Equal(t, wire.Cursor(5), actions[0].Cursor)
}

func TestMachineConnectedNotifyIgnoresStaleCursor(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	m.Apply(Event{Kind: EventConnectRequested})
	m.Apply(Event{Kind: EventConnectSucceeded})
	m.Apply(Event{Kind: EventHandshakeCompleted, Cursor: 10})

	m.Apply(Event{Kind: EventMessageReceived, MessageType: wire.TypeNotify, Cursor: 2})
	assert.Equal(t, wire.Cursor(10), m.Status().Cursor)
}

func TestMachineConnectedPushAckEmitsActions(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	m.Apply(Event{Kind: EventConnectRequested})
	m.Apply(Event{Kind: EventConnectSucceeded})
	m.Apply(Event{Kind: EventHandshakeCompleted})

	blobID := wire.NewBlobID()
	actions := m.Apply(Event{Kind: EventMessageReceived, MessageType: wire.TypePushAck, BlobID: blobID})
	assert.Equal(t, []ActionKind{ActionAckPendingPush, ActionEmitBlobPushed}, actionTypes(actions))
	assert.Equal(t, blobID, actions[0].BlobID)
}

func TestMachineDisconnectFromConnectedReconnects(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	m.Apply(Event{Kind: EventConnectRequested})
	m.Apply(Event{Kind: EventConnectSucceeded})
	m.Apply(Event{Kind: EventHandshakeCompleted})

	actions := m.Apply(Event{Kind: EventDisconnected, Reason: "timeout"})
	assert.Equal(t, Reconnecting, m.Status().State)
	assert.Equal(t, []ActionKind{ActionStartReconnectTimer, ActionEmitDisconnected}, actionTypes(actions))
}

func TestMachineIgnoresEventNotValidForState(t *testing.T) {
	m := NewMachine(DefaultBackoffParams)
	actions := m.Apply(Event{Kind: EventHandshakeCompleted})
	assert.Nil(t, actions)
	assert.Equal(t, Disconnected, m.Status().State)
}
