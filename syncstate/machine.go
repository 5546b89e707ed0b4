package syncstate

import "github.com/zerok-sync/sync/wire"

// Machine holds the current Status and advances it one Event at a time.
// Apply is a pure function of (prior status, event) to (new status,
// actions); it performs no I/O and never blocks (spec §4.2).
type Machine struct {
	status Status
	params BackoffParams
}

// NewMachine creates a Machine in the Disconnected state.
func NewMachine(params BackoffParams) *Machine {
	return &Machine{status: Status{State: Disconnected}, params: params}
}

// Status returns the machine's current state snapshot.
func (m *Machine) Status() Status {
	return m.status
}

// Apply advances the machine by one event, returning the actions the
// runtime must now perform. An event that is not valid for the current
// state is ignored (status unchanged, no actions) rather than treated as an
// error, since the runtime may race a stale timer or duplicate signal
// against a state transition it already made.
func (m *Machine) Apply(ev Event) []Action {
	switch m.status.State {
	case Disconnected:
		return m.applyDisconnected(ev)
	case Connecting:
		return m.applyConnecting(ev)
	case Handshaking:
		return m.applyHandshaking(ev)
	case Connected:
		return m.applyConnected(ev)
	case Reconnecting:
		return m.applyReconnecting(ev)
	default:
		return nil
	}
}

func (m *Machine) applyDisconnected(ev Event) []Action {
	if ev.Kind != EventConnectRequested {
		return nil
	}
	m.status = Status{State: Connecting}
	return []Action{{Type: ActionConnect}}
}

func (m *Machine) applyConnecting(ev Event) []Action {
	switch ev.Kind {
	case EventConnectSucceeded:
		m.status = Status{State: Handshaking}
		return []Action{{Type: ActionSendHello}}
	case EventConnectFailed:
		next := m.status.ReconnectCount + 1
		m.status = Status{State: Reconnecting, ReconnectCount: next}
		delay := m.params.BaseDelay(next)
		return []Action{{Type: ActionStartReconnectTimer, Delay: delay}}
	default:
		return nil
	}
}

func (m *Machine) applyHandshaking(ev Event) []Action {
	switch ev.Kind {
	case EventHandshakeCompleted:
		m.status = Status{State: Connected, Cursor: ev.Cursor}
		return []Action{
			{Type: ActionEmitConnected},
			{Type: ActionFlushPendingPushes},
		}
	case EventConnectFailed:
		// The transport-level connection succeeded but the Hello/Welcome
		// exchange that completes this state did not; treat it the same
		// as a failed connection attempt rather than leaving the machine
		// stuck in Handshaking forever.
		next := m.status.ReconnectCount + 1
		m.status = Status{State: Reconnecting, ReconnectCount: next}
		delay := m.params.BaseDelay(next)
		return []Action{{Type: ActionStartReconnectTimer, Delay: delay}}
	default:
		return nil
	}
}

func (m *Machine) applyConnected(ev Event) []Action {
	switch ev.Kind {
	case EventMessageReceived:
		switch ev.MessageType {
		case wire.TypePushAck:
			return []Action{
				{Type: ActionAckPendingPush, BlobID: ev.BlobID},
				{Type: ActionEmitBlobPushed, BlobID: ev.BlobID},
			}
		case wire.TypeNotify:
			if ev.Cursor > m.status.Cursor {
				m.status.Cursor = ev.Cursor
			}
			return []Action{{Type: ActionEmitBlobAvailable, Cursor: m.status.Cursor}}
		default:
			return nil
		}
	case EventDisconnected:
		m.status = Status{State: Reconnecting, ReconnectCount: 1}
		delay := m.params.BaseDelay(1)
		return []Action{
			{Type: ActionStartReconnectTimer, Delay: delay},
			{Type: ActionEmitDisconnected},
		}
	default:
		return nil
	}
}

func (m *Machine) applyReconnecting(ev Event) []Action {
	switch ev.Kind {
	case EventReconnectTimer:
		m.status = Status{State: Connecting, ReconnectCount: m.status.ReconnectCount}
		return []Action{{Type: ActionConnect}}
	case EventConnectFailed:
		next := m.status.ReconnectCount + 1
		m.status = Status{State: Reconnecting, ReconnectCount: next}
		delay := m.params.BaseDelay(next)
		return []Action{{Type: ActionStartReconnectTimer, Delay: delay}}
	default:
		return nil
	}
}
