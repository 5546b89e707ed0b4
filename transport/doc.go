// Package transport defines the narrow capability the sync engine consumes
// from its underlying network layer (spec §6.1): authenticated byte
// streams between endpoints identified by a 32-byte node id. The engine
// does not care whether the concrete implementation is QUIC with NAT
// traversal in production or an in-process channel in tests — it only
// calls Connect, Disconnect, Send, and Recv.
//
// [InProcessTransport] is the in-memory implementation used throughout
// this repository's tests; a production build supplies its own
// QUIC-backed implementation of [Capability] from outside this package.
package transport
