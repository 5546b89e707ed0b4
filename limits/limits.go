package limits

import (
	"errors"
	"time"
)

const (
	// MaxBlobSize is the maximum ciphertext payload accepted on the relay
	// sync path. Exactly MaxBlobSize bytes is accepted; MaxBlobSize+1 is
	// rejected with ErrBlobTooLarge.
	MaxBlobSize = 1024 * 1024

	// EnvelopeAEADOverhead is the XChaCha20-Poly1305 authentication tag
	// size added to every encrypted payload.
	EnvelopeAEADOverhead = 16

	// EnvelopeNonceSize is the width of the envelope's random nonce.
	EnvelopeNonceSize = 24

	// MaxGroupStorage is the aggregate ciphertext quota per group.
	MaxGroupStorage = 100 * 1024 * 1024

	// DefaultTTL is the retention window for a relay-held blob absent an
	// explicit TTL on the Push message.
	DefaultTTL = 7 * 24 * time.Hour

	// MaxMessagesPerMinutePerDevice is the per-device Push rate; the
	// relay's RateLimiter.AllowPush enforces the same value, written there
	// as a literal. Pull and Presence traffic is not rate-limited.
	MaxMessagesPerMinutePerDevice = 100

	// MaxConcurrentSessionsPerAddr is the rate table's cap on simultaneous
	// transport sessions from one source address. Nothing in this
	// repository counts or enforces it.
	MaxConcurrentSessionsPerAddr = 10

	// MaxInvitePostPerMinute bounds short-code invite creation per source.
	MaxInvitePostPerMinute = 5

	// MaxInviteGetSuccessPerMinute bounds successful short-code fetches.
	MaxInviteGetSuccessPerMinute = 10

	// MaxInviteGetMissPerMinute bounds failed short-code lookups per source
	// per minute (lookup_key has ~41 bits of entropy). There is no
	// exponential backoff beyond this fixed window.
	MaxInviteGetMissPerMinute = 3

	// InviteDefaultExpiry is the default single-use invite lifetime.
	InviteDefaultExpiry = 10 * time.Minute

	// DefaultPullLimit bounds a single Pull response batch.
	DefaultPullLimit = 100
)

var (
	// ErrEmptyPayload indicates an empty push payload was provided.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrBlobTooLarge indicates a payload exceeds MaxBlobSize.
	ErrBlobTooLarge = errors.New("blob too large")
)

// ValidateBlobSize rejects empty or over-size plaintext/ciphertext payloads.
// Call it on the plaintext before encryption; the AEAD overhead is
// accounted for separately by the caller comparing the final wire size.
func ValidateBlobSize(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > MaxBlobSize {
		return ErrBlobTooLarge
	}
	return nil
}
