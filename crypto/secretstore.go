package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrSecretNotFound is returned when no value is stored under the given key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is the narrow collaborator a client runtime uses to persist
// secrets; the client stores the device's long-term private key through it
// (LoadOrGenerateDeviceKey) and no group secret. The
// sync engine never dictates how secrets reach disk; platform front ends
// implement this interface over the OS keychain (Keychain Services, DPAPI,
// libsecret) and hand the implementation to the client at construction
// time.
type SecretStore interface {
	// Put stores value under key, replacing any existing entry.
	Put(key string, value []byte) error
	// Get retrieves the value stored under key, or ErrSecretNotFound.
	Get(key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// MemorySecretStore is an in-memory SecretStore, used by tests and by
// headless deployments (relay-side tooling, CI) that have no OS keychain
// and accept that secrets do not survive a process restart.
type MemorySecretStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemorySecretStore creates an empty MemorySecretStore.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{values: make(map[string][]byte)}
}

// Put implements SecretStore.
func (m *MemorySecretStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), value...)
	m.values[key] = cp
	return nil
}

// Get implements SecretStore.
func (m *MemorySecretStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Delete implements SecretStore.
func (m *MemorySecretStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok {
		ZeroBytes(old)
		delete(m.values, key)
	}
	return nil
}

// LoadOrGenerateDeviceKey returns the device's long-term KeyPair from store
// under deviceKeyName, generating and persisting a fresh one if absent.
func LoadOrGenerateDeviceKey(store SecretStore, deviceKeyName string) (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "LoadOrGenerateDeviceKey",
		"package":  "crypto",
	})

	raw, err := store.Get(deviceKeyName)
	if err == nil {
		if len(raw) != 32 {
			return nil, fmt.Errorf("stored device key has wrong length: %d", len(raw))
		}
		var secret [32]byte
		copy(secret[:], raw)
		kp, ferr := FromSecretKey(secret)
		ZeroBytes(secret[:])
		return kp, ferr
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return nil, fmt.Errorf("load device key: %w", err)
	}

	logger.Debug("No device key on disk, generating a fresh one")
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	if err := store.Put(deviceKeyName, kp.Private[:]); err != nil {
		return nil, fmt.Errorf("persist device key: %w", err)
	}
	return kp, nil
}
