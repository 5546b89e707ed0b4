package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// EnvelopeNonceSize is the width of the random nonce SealEnvelope prefixes
// to its output (and of the explicit nonce SealEnvelopeWithNonce takes).
const EnvelopeNonceSize = chacha20poly1305.NonceSizeX

// SealEnvelope encrypts plaintext with XChaCha20-Poly1305 under key (the
// envelope sub-key derived from the group secret via [DeriveSubKey]),
// authenticating associatedData (in the client, the envelope's group ID,
// sender device ID, and blob ID) without encrypting it. The returned slice
// is nonce || ciphertext || tag (spec §4.2, layer 2).
func SealEnvelope(key, plaintext, associatedData []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "SealEnvelope",
		"package":  "crypto",
	})
	logger.Debug("Function entry: sealing envelope")

	nonce := make([]byte, EnvelopeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate envelope nonce: %w", err)
	}

	sealed, err := SealEnvelopeWithNonce(key, nonce, plaintext, associatedData)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error_type": "aead_seal_failed",
			"error":      err.Error(),
		}).Error("Failed to seal envelope")
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// SealEnvelopeWithNonce encrypts plaintext under an explicit nonce rather
// than generating one internally. It is used where the wire format carries
// the nonce in a field of its own alongside the ciphertext (spec §4.1's
// Envelope.Nonce for Push messages), rather than prefixed to it. Callers
// own nonce uniqueness; it must never repeat under the same key.
func SealEnvelopeWithNonce(key, nonce, plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build envelope AEAD: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("envelope nonce wrong size: got %d, want %d", len(nonce), aead.NonceSize())
	}
	return aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// OpenEnvelopeWithNonce reverses SealEnvelopeWithNonce.
func OpenEnvelopeWithNonce(key, nonce, ciphertext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build envelope AEAD: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("envelope nonce wrong size: got %d, want %d", len(nonce), aead.NonceSize())
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plaintext, nil
}

// OpenEnvelope reverses SealEnvelope. A non-nil error means the envelope was
// tampered with, used the wrong key, or is truncated; callers must treat
// these identically and never attempt partial recovery.
func OpenEnvelope(key, sealed, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build envelope AEAD: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("envelope truncated: got %d bytes", len(sealed))
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plaintext, nil
}
