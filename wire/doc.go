// Package wire implements layer 1 of the sync engine: the message
// taxonomy, the Envelope record every message travels inside, and the
// compact binary codec used to serialize both (spec §4.1). Nothing in
// this package performs I/O or holds state; it only converts between typed
// Go values and wire bytes, using github.com/vmihailenco/msgpack/v5 the
// same way the rest of the pack leans on MessagePack for compact framing.
//
// The codec fails closed: a corrupt, truncated, or version-mismatched
// frame returns ErrInvalidMessage and never yields a partially populated
// record.
package wire
