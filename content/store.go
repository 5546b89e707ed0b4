package content

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/wire"
)

// Store is a content-addressed blob store: ciphertext in, ciphertext out,
// indexed solely by its BLAKE3 hash. Implementations never see plaintext
// and never need to; they are free to be shared across groups since the
// hash itself is the access credential.
type Store interface {
	Put(hash wire.ContentHash, ciphertext []byte) error
	Get(hash wire.ContentHash) ([]byte, error)
	Has(hash wire.ContentHash) bool
	Delete(hash wire.ContentHash) error
}

// MemoryStore is an in-process Store backed by a map, suitable for tests
// and for relay deployments that front it with an external object store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[wire.ContentHash][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[wire.ContentHash][]byte)}
}

// Put stores ciphertext under hash, overwriting any existing entry (a
// content-addressed store is append-only in practice since hash collisions
// mean identical content, but callers may legitimately re-Put the same
// hash).
func (s *MemoryStore) Put(hash wire.ContentHash, ciphertext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(ciphertext))
	copy(stored, ciphertext)
	s.blobs[hash] = stored
	return nil
}

// Get returns the ciphertext stored under hash, or ErrContentNotFound.
func (s *MemoryStore) Get(hash wire.ContentHash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[hash]
	if !ok {
		return nil, ErrContentNotFound
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// Has reports whether hash is present.
func (s *MemoryStore) Has(hash wire.ContentHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[hash]
	return ok
}

// Delete removes hash if present; deleting an absent hash is not an error.
func (s *MemoryStore) Delete(hash wire.ContentHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, hash)
	return nil
}

// DiskStore is a Store backed by a local directory, one file per hash named
// by its hex encoding, for content blobs too large to keep comfortably
// memory-resident. The client defaults to MemoryStore; a DiskStore must be
// passed in explicitly.
type DiskStore struct {
	root string
}

// NewDiskStore returns a DiskStore rooted at dir, creating it if absent.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create content store directory: %w", err)
	}
	return &DiskStore{root: dir}, nil
}

func (s *DiskStore) pathFor(hash wire.ContentHash) string {
	return filepath.Join(s.root, hex.EncodeToString(hash[:]))
}

// Put writes ciphertext to its content-addressed path. Writes go through a
// temp file and rename so a crash mid-write never leaves a partial blob
// visible under its final hash-named path.
func (s *DiskStore) Put(hash wire.ContentHash, ciphertext []byte) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Put",
		"package":  "content",
	})

	final := s.pathFor(hash)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return fmt.Errorf("write content blob: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		logger.WithFields(logrus.Fields{
			"error_type": "rename_failed",
			"error":      err.Error(),
		}).Error("Failed to finalize content blob write")
		return fmt.Errorf("finalize content blob: %w", err)
	}
	return nil
}

// Get reads the ciphertext stored under hash.
func (s *DiskStore) Get(hash wire.ContentHash) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("read content blob: %w", err)
	}
	return data, nil
}

// Has reports whether hash has a corresponding file.
func (s *DiskStore) Has(hash wire.ContentHash) bool {
	_, err := os.Stat(s.pathFor(hash))
	return err == nil
}

// Delete removes the file for hash; deleting an absent hash is not an
// error.
func (s *DiskStore) Delete(hash wire.ContentHash) error {
	if err := os.Remove(s.pathFor(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete content blob: %w", err)
	}
	return nil
}
