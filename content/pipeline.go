package content

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zerok-sync/sync/wire"
)

// DefaultChunkSize is the transfer chunk width used when none is specified.
// 64 KiB keeps a single corrupt chunk's retransmission cheap without
// fragmenting the BLAKE3 hash list past usefulness.
const DefaultChunkSize = 64 * 1024

// Sealed is the result of encrypting a content blob: ciphertext plus the
// hashes needed to verify it, chunk by chunk, during transfer (spec §4.4).
type Sealed struct {
	Nonce       [24]byte
	ContentHash wire.ContentHash
	Ciphertext  []byte
	ChunkSize   int
	ChunkHashes []wire.ContentHash
}

// EncryptThenHash encrypts plaintext under contentKey (typically derived via
// [crypto.DeriveContentKey]) with XChaCha20-Poly1305, then hashes the
// resulting ciphertext with BLAKE3 both as a whole (ContentHash, the value
// carried in wire.ContentRef) and in fixed-size chunks (ChunkHashes, used to
// verify a streaming download before it completes). Plaintext is never
// hashed or otherwise referenced once this returns.
func EncryptThenHash(contentKey, plaintext []byte) (*Sealed, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "EncryptThenHash",
		"package":  "content",
	})
	logger.Debug("Function entry: sealing content blob")

	if len(plaintext) == 0 {
		return nil, ErrEmptyContent
	}

	aead, err := chacha20poly1305.NewX(contentKey)
	if err != nil {
		return nil, fmt.Errorf("build content AEAD: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate content nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)

	chunks := splitChunks(ciphertext, DefaultChunkSize)
	chunkHashes := make([]wire.ContentHash, len(chunks))
	fullHasher := blake3.New()
	for i, chunk := range chunks {
		chunkHashes[i] = blake3Sum(chunk)
		if _, err := fullHasher.Write(chunk); err != nil {
			return nil, fmt.Errorf("hash content chunk %d: %w", i, err)
		}
	}

	var contentHash wire.ContentHash
	copy(contentHash[:], fullHasher.Sum(nil))

	logger.WithFields(logrus.Fields{
		"ciphertext_size": len(ciphertext),
		"chunk_count":     len(chunks),
	}).Debug("Sealed content blob")

	return &Sealed{
		Nonce:       nonce,
		ContentHash: contentHash,
		Ciphertext:  ciphertext,
		ChunkSize:   DefaultChunkSize,
		ChunkHashes: chunkHashes,
	}, nil
}

// DecryptVerified verifies ciphertext against expectedHash before
// attempting decryption, then opens it under contentKey and nonce. Used for the non-streaming (already fully-buffered) case; the
// streaming case verifies per-chunk via [ChunkVerifier] instead.
func DecryptVerified(contentKey []byte, nonce [24]byte, ciphertext []byte, expectedHash wire.ContentHash) ([]byte, error) {
	if blake3Sum(ciphertext) != expectedHash {
		return nil, ErrContentCorrupt
	}

	aead, err := chacha20poly1305.NewX(contentKey)
	if err != nil {
		return nil, fmt.Errorf("build content AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open content blob: %w", err)
	}
	return plaintext, nil
}

func blake3Sum(data []byte) wire.ContentHash {
	sum := blake3.Sum256(data)
	var out wire.ContentHash
	copy(out[:], sum[:])
	return out
}

func splitChunks(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var chunks [][]byte
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[offset:end])
	}
	return chunks
}
