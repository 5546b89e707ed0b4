package client

import (
	"sync"

	"github.com/zerok-sync/sync/syncstate"
	"github.com/zerok-sync/sync/wire"
)

// Store persists the two pieces of client state that must survive a
// process restart (spec §4.3, §6.5): the last cursor applied per group and
// the pending-push buffer. Implementations must make SaveCursor and
// SavePending atomic with respect to a concurrent process crash; the sync
// engine calls them synchronously on the hot path and treats an error as
// fatal to the operation that triggered it.
type Store interface {
	SaveCursor(group wire.GroupID, cursor wire.Cursor) error
	LoadCursor(group wire.GroupID) (wire.Cursor, error)
	SavePending(group wire.GroupID, pushes []syncstate.PendingPush) error
	LoadPending(group wire.GroupID) ([]syncstate.PendingPush, error)
}

// MemoryStore is a Store with no durability, used by tests and by callers
// that accept losing in-flight state across a restart.
type MemoryStore struct {
	mu      sync.Mutex
	cursors map[wire.GroupID]wire.Cursor
	pending map[wire.GroupID][]syncstate.PendingPush
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors: make(map[wire.GroupID]wire.Cursor),
		pending: make(map[wire.GroupID][]syncstate.PendingPush),
	}
}

// SaveCursor implements Store.
func (m *MemoryStore) SaveCursor(group wire.GroupID, cursor wire.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[group] = cursor
	return nil
}

// LoadCursor implements Store.
func (m *MemoryStore) LoadCursor(group wire.GroupID) (wire.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[group], nil
}

// SavePending implements Store.
func (m *MemoryStore) SavePending(group wire.GroupID, pushes []syncstate.PendingPush) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]syncstate.PendingPush(nil), pushes...)
	m.pending[group] = cp
	return nil
}

// LoadPending implements Store.
func (m *MemoryStore) LoadPending(group wire.GroupID) ([]syncstate.PendingPush, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]syncstate.PendingPush(nil), m.pending[group]...), nil
}
