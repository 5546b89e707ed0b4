// Package crypto implements the device-level cryptographic primitives the
// rest of the sync engine is built on: long-term device identity keypairs,
// the hybrid classical+post-quantum key material used by the transport
// handshake, group-secret stretching and derivation, the per-envelope and
// per-blob AEAD layers, and secure-memory hygiene.
//
// # Device identity
//
// Every device has a long-term X25519 [KeyPair]; the public half, base64url
// encoded, is the device's DeviceId:
//
//	keyPair, err := crypto.GenerateKeyPair()
//	deviceID := keyPair.DeviceID()
//
// # Hybrid key exchange
//
// [KEMKeyPair] wraps an ML-KEM-768 key pair used alongside X25519 in the
// transport handshake (see the noise package), so the resulting session key
// stays secret even against an adversary who records today's handshake and
// later gains a quantum computer.
//
// # Group secret and envelopes
//
// The group secret a set of devices shares is never used directly; it is
// stretched with device-adaptive Argon2id ([StretchGroupSecret]) and used to
// derive per-purpose keys with HKDF-SHA256. Sync envelopes are sealed with
// XChaCha20-Poly1305 ([SealEnvelope]/[OpenEnvelope]); large content blobs use
// a separate per-blob content key ([DeriveContentKey]) so that compromising
// one blob's key never exposes another.
//
// # Secure memory
//
// Sensitive byte slices should be wiped with [ZeroBytes] once no longer
// needed; it uses operations the compiler cannot optimize away.
package crypto
