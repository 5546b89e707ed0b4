// Package relaycore implements the relay side of the sync engine (spec
// §4.5): it accepts authenticated sessions, routes encrypted envelopes by
// group, assigns monotonic cursors, buffers ciphertext for offline
// recipients, evicts on TTL or full delivery, enforces quotas, and honors
// device revocation. It never holds, derives, or observes a group key —
// every payload it stores is opaque ciphertext.
package relaycore
