package content

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkVerifierAcceptsValidStream(t *testing.T) {
	plaintext := bytes.Repeat([]byte("stream me "), 10000)
	sealed, err := EncryptThenHash(testKey(), plaintext)
	require.NoError(t, err)

	chunks := splitChunks(sealed.Ciphertext, sealed.ChunkSize)

	var out bytes.Buffer
	verifier := NewChunkVerifier(sealed.ChunkHashes, sealed.ContentHash, &out)
	for _, chunk := range chunks {
		require.NoError(t, verifier.VerifyAndWrite(chunk))
	}
	require.NoError(t, verifier.Finalize())
	assert.Equal(t, sealed.Ciphertext, out.Bytes())
}

func TestChunkVerifierRejectsTamperedChunk(t *testing.T) {
	plaintext := bytes.Repeat([]byte("stream me "), 10000)
	sealed, err := EncryptThenHash(testKey(), plaintext)
	require.NoError(t, err)

	chunks := splitChunks(sealed.Ciphertext, sealed.ChunkSize)
	require.True(t, len(chunks) > 1, "test needs more than one chunk")
	chunks[0][0] ^= 0xFF

	var out bytes.Buffer
	verifier := NewChunkVerifier(sealed.ChunkHashes, sealed.ContentHash, &out)
	err = verifier.VerifyAndWrite(chunks[0])
	assert.ErrorIs(t, err, ErrContentCorrupt)
	assert.Equal(t, 0, out.Len(), "corrupt chunk must never be written out")
}

func TestChunkVerifierRejectsIncompleteTransfer(t *testing.T) {
	plaintext := bytes.Repeat([]byte("stream me "), 10000)
	sealed, err := EncryptThenHash(testKey(), plaintext)
	require.NoError(t, err)

	chunks := splitChunks(sealed.Ciphertext, sealed.ChunkSize)
	require.True(t, len(chunks) > 1, "test needs more than one chunk")

	var out bytes.Buffer
	verifier := NewChunkVerifier(sealed.ChunkHashes, sealed.ContentHash, &out)
	require.NoError(t, verifier.VerifyAndWrite(chunks[0]))

	err = verifier.Finalize()
	assert.Error(t, err)
}

func TestChunkVerifierRejectsExtraChunk(t *testing.T) {
	plaintext := []byte("short single chunk blob")
	sealed, err := EncryptThenHash(testKey(), plaintext)
	require.NoError(t, err)
	require.Len(t, sealed.ChunkHashes, 1)

	var out bytes.Buffer
	verifier := NewChunkVerifier(sealed.ChunkHashes, sealed.ContentHash, &out)
	require.NoError(t, verifier.VerifyAndWrite(sealed.Ciphertext))
	require.NoError(t, verifier.Finalize())

	err = verifier.VerifyAndWrite(sealed.Ciphertext)
	assert.ErrorIs(t, err, ErrContentCorrupt)
}
