package relaycore

import "errors"

var (
	// ErrUnknownGroup indicates a message referenced a group the relay has
	// no record of.
	ErrUnknownGroup = errors.New("unknown group")

	// ErrDeviceRevoked indicates the sending device has been revoked from
	// the declared group; the session must be rejected.
	ErrDeviceRevoked = errors.New("device revoked")

	// ErrNotBlobOwner indicates a force-delete was requested by a device
	// other than the blob's original sender.
	ErrNotBlobOwner = errors.New("not blob owner")

	// ErrRateLimited indicates a per-device or per-source rate limit was
	// exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrBlobTooLarge indicates a push payload exceeded the size limit.
	ErrBlobTooLarge = errors.New("blob too large")

	// ErrInvalidTTL indicates a Push or invite TTL/expiry field could not
	// be converted to a duration (e.g. a uint64 seconds count out of
	// int64 range).
	ErrInvalidTTL = errors.New("invalid ttl")

	// ErrGroupQuotaExceeded indicates a group's aggregate ciphertext
	// storage would exceed its quota.
	ErrGroupQuotaExceeded = errors.New("group quota exceeded")

	// ErrInvalidPushToken indicates a malformed push-notification token.
	ErrInvalidPushToken = errors.New("invalid push token")

	// ErrRelayOverloaded indicates a transient failure (e.g. a storage
	// lock timeout) persisted past bounded internal retry.
	ErrRelayOverloaded = errors.New("relay overloaded")

	// ErrRelayShuttingDown indicates the relay is draining sessions for a
	// graceful shutdown.
	ErrRelayShuttingDown = errors.New("relay shutting down")

	// ErrBlobNotDeletable indicates a non-force delete was requested
	// before every non-revoked recipient had acknowledged the blob.
	ErrBlobNotDeletable = errors.New("blob not deletable: pending recipients remain")
)
