// Package invite implements the pairing-invite codec (spec §4.2, §6.6): a
// record carrying protocol version, relay node identifier, GroupId,
// GroupSecret, creator DeviceId, and expiry, in two transport forms — a
// QR/URL form (base64url of the serialized record) and a short-code form
// (`XXXX-XXXX-XXXX-XXXX`, split into a relay-visible lookup_key and a
// relay-blind decrypt_key). Like syncstate, this package performs no I/O:
// short-code storage and retrieval against the relay is the client
// runtime's job, using the pieces this package produces.
package invite
