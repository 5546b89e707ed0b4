package client

import (
	"time"

	"github.com/zerok-sync/sync/content"
	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/syncstate"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// GroupMembership is the persisted record a client holds for one group it
// belongs to (spec §6.5): the group id, the raw secret shared out of band,
// the relay it syncs through, and the Argon2id salt distributed inside the
// invite that created the group.
type GroupMembership struct {
	GroupID     wire.GroupID
	GroupSecret [32]byte
	Salt        [crypto.GroupKeySaltSize]byte
	RelayNodeID transport.NodeID
}

// Options configures a new Client. The zero value is invalid except where a
// field documents a default; construct with NewOptions.
type Options struct {
	// SecretStore persists the device's long-term private key. Required.
	SecretStore crypto.SecretStore
	// DeviceKeyName is the key under which the device's private key is
	// stored in SecretStore.
	DeviceKeyName string
	// Membership is the group this client joins at construction. A client
	// created without one must call JoinInvite before any group-scoped
	// operation.
	Membership *GroupMembership
	// DeviceClass selects the Argon2id cost table row used to stretch the
	// group secret (spec §4.3).
	DeviceClass crypto.DeviceClass
	// Transport is the capability used to reach the relay and peers.
	// Required.
	Transport transport.Capability
	// Backoff overrides the reconnect jitter curve. Defaults to
	// syncstate.DefaultBackoffParams.
	Backoff syncstate.BackoffParams
	// PendingStore persists pending pushes and the last-applied cursor
	// across restarts. Defaults to an in-memory store (no persistence).
	PendingStore Store
	// PushAckTimeout bounds how long Push waits for the relay's PushAck
	// before returning ErrAckTimeout.
	PushAckTimeout time.Duration
	// EventBufferSize bounds the Subscribe channel's capacity.
	EventBufferSize int
	// ContentStore holds large-content ciphertext pushed or fetched over
	// the content side channel (spec §4.4). Defaults to an in-memory
	// store (no persistence).
	ContentStore content.Store
}

// NewOptions returns an Options populated with the engine's defaults,
// mirroring the teacher's NewOptions() constructor pattern. Callers set
// SecretStore, Transport, and (if joining a group at construction time)
// Membership before calling New.
func NewOptions() *Options {
	return &Options{
		DeviceKeyName:   "device-identity-key",
		DeviceClass:     crypto.DeviceClassDesktop,
		Backoff:         syncstate.DefaultBackoffParams,
		PendingStore:    NewMemoryStore(),
		PushAckTimeout:  10 * time.Second,
		EventBufferSize: 64,
		ContentStore:    content.NewMemoryStore(),
	}
}
