// Package client implements the runtime that binds the pure syncstate
// machine to a real transport and real cryptography: it drives the Noise
// handshake, encrypts and decrypts envelopes, persists cursor and
// pending-push progress, and exposes the small public API and event
// stream a host application consumes (spec §4.3).
package client
