// Package noise implements the transport handshake of the sync engine
// (spec §4.3, layer 1): a Noise XX mutual-authentication handshake —
// `-> e; <- e, ee, s, es; -> s, se` — built on github.com/flynn/noise with
// ChaCha20-Poly1305 / BLAKE2s, piggybacking an ML-KEM-768 key encapsulation
// onto the handshake payload so the session key is hybrid classical +
// post-quantum. Capture-now-decrypt-later is defeated as long as either
// X25519 or ML-KEM-768 remains unbroken.
//
// The handshake itself never touches application payloads — it only
// establishes an authenticated, forward-secret transport session between
// two devices. The session produced by a completed handshake exposes
// Encrypt/Decrypt for framing envelopes over that session; the inner
// payload encryption keyed from the group secret (the spec's layer 2) is a
// separate, independent AEAD applied before the bytes ever reach this
// package.
package noise
