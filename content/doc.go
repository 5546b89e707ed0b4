// Package content implements layer 4 of the sync engine, the large-content
// side channel (spec §4.4): an encrypt-then-hash pipeline keyed per-blob
// from the group secret, a content-addressed store indexed by the BLAKE3
// hash of ciphertext (never plaintext), and a streaming, chunk-verified
// transfer path so a partial or tampered download never surfaces
// unverified bytes to the application.
//
// Hashing ciphertext rather than plaintext lets any intermediate provider
// verify the bytes it forwards without ever needing to see plaintext,
// which preserves the zero-knowledge property all the way through the
// transfer path, not just at rest.
package content
