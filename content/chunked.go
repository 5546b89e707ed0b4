package content

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/zerok-sync/sync/wire"
)

// ChunkVerifier streams received ciphertext chunks to out, verifying each
// chunk against its expected BLAKE3 hash before it is written, and the
// accumulated whole-ciphertext BLAKE3 hash against ContentHash once the
// final chunk arrives. Any mismatch returns ErrContentCorrupt and stops
// writing immediately — a caller must never treat bytes already written to
// out as usable, since verification happens before, not after, each write.
type ChunkVerifier struct {
	out          io.Writer
	contentHash  wire.ContentHash
	chunkHashes  []wire.ContentHash
	nextChunk    int
	fullHasher   *blake3.Hasher
	done         bool
}

// NewChunkVerifier constructs a verifier for a transfer expected to consist
// of exactly len(chunkHashes) chunks whose concatenation hashes to
// contentHash.
func NewChunkVerifier(chunkHashes []wire.ContentHash, contentHash wire.ContentHash, out io.Writer) *ChunkVerifier {
	return &ChunkVerifier{
		out:         out,
		contentHash: contentHash,
		chunkHashes: chunkHashes,
		fullHasher:  blake3.New(),
	}
}

// VerifyAndWrite checks chunk against the next expected chunk hash and, only
// if it matches, writes it to out and advances. Calling it more times than
// there are expected chunks is an error.
func (v *ChunkVerifier) VerifyAndWrite(chunk []byte) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "VerifyAndWrite",
		"package":  "content",
	})

	if v.done {
		return fmt.Errorf("%w: verifier already finalized", ErrContentCorrupt)
	}
	if v.nextChunk >= len(v.chunkHashes) {
		return fmt.Errorf("%w: received more chunks than expected", ErrContentCorrupt)
	}

	if blake3Sum(chunk) != v.chunkHashes[v.nextChunk] {
		logger.WithFields(logrus.Fields{
			"error_type":  "chunk_hash_mismatch",
			"chunk_index": v.nextChunk,
		}).Error("Rejected corrupt content chunk")
		return fmt.Errorf("%w: chunk %d hash mismatch", ErrContentCorrupt, v.nextChunk)
	}

	if _, err := v.fullHasher.Write(chunk); err != nil {
		return fmt.Errorf("hash running content chunk: %w", err)
	}
	if _, err := v.out.Write(chunk); err != nil {
		return fmt.Errorf("write verified content chunk: %w", err)
	}

	v.nextChunk++
	return nil
}

// Finalize confirms every expected chunk was received and that the
// accumulated hash matches ContentHash. It must be called after the last
// VerifyAndWrite. Too few chunks yields an incomplete-transfer error that
// does not wrap ErrContentCorrupt; a whole-content hash mismatch yields
// ErrContentCorrupt. Either way the transfer must not be treated as usable.
func (v *ChunkVerifier) Finalize() error {
	if v.nextChunk != len(v.chunkHashes) {
		return fmt.Errorf("incomplete transfer: received %d of %d chunks", v.nextChunk, len(v.chunkHashes))
	}

	var got wire.ContentHash
	copy(got[:], v.fullHasher.Sum(nil))
	if got != v.contentHash {
		return fmt.Errorf("%w: whole-content hash mismatch after all chunks verified", ErrContentCorrupt)
	}

	v.done = true
	return nil
}
