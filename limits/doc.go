// Package limits provides centralized size and rate constants shared by the
// client runtime, the content pipeline, and the relay. Keeping them in one
// package ensures the relay and its clients agree on what "too large" and
// "too fast" mean without duplicating magic numbers.
//
// # Size hierarchy
//
//   - MaxBlobSize (1 MiB): the hard limit for a single push on the relay
//     sync path (spec §4.3, §8 boundary behavior: exactly 1 MiB is accepted,
//     1 MiB+1 is rejected with BlobTooLarge).
//   - MaxGroupStorage (100 MiB): aggregate ciphertext quota per group.
//   - EnvelopeAEADOverhead: XChaCha20-Poly1305 tag overhead added to a
//     payload before it is wire-sized against MaxBlobSize.
//
// # Rate hierarchy
//
// MaxMessagesPerMinutePerDevice, MaxConcurrentSessionsPerAddr,
// MaxInvitePostPerMinute, MaxInviteGetSuccessPerMinute, and
// MaxInviteGetMissPerMinute mirror the relay's rate table (spec §4.5).
package limits
