package wire

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the outer record every wire message travels inside (spec §3):
// protocol version, message type tag, sender identity, group, cursor
// (zero when unassigned), an informational timestamp never used for
// ordering, a 24-byte nonce, and an opaque payload whose interpretation
// depends on Type. For control messages (Hello, Welcome, Pull, ...) the
// payload is a msgpack-encoded record from this package. For Push the
// payload is the layer-2 AEAD ciphertext; Nonce is the one consumed by
// that AEAD.
type Envelope struct {
	Version    uint8       `msgpack:"v"`
	Type       MessageType `msgpack:"t"`
	Sender     DeviceID    `msgpack:"s"`
	Group      GroupID     `msgpack:"g"`
	Cursor     Cursor      `msgpack:"c"`
	Timestamp  int64       `msgpack:"ts"`
	Nonce      [24]byte    `msgpack:"n"`
	Payload    []byte      `msgpack:"p"`
	// BlobID identifies the blob a Push/PushAck/Delete/ContentRef envelope
	// concerns. It travels outside Payload because Payload is opaque
	// ciphertext for Push; it is zero for message types that don't need it.
	BlobID BlobID `msgpack:"b"`
	// TTLSeconds is populated on Push only; 0 means "use the relay default".
	TTLSeconds uint64 `msgpack:"ttl"`
}

// wireEnvelope mirrors Envelope with slice fields standing in for the fixed
// arrays, since msgpack round-trips byte slices far more predictably across
// implementations than fixed-size Go arrays.
type wireEnvelope struct {
	Version    uint8       `msgpack:"v"`
	Type       MessageType `msgpack:"t"`
	Sender     []byte      `msgpack:"s"`
	Group      []byte      `msgpack:"g"`
	Cursor     Cursor      `msgpack:"c"`
	Timestamp  int64       `msgpack:"ts"`
	Nonce      []byte      `msgpack:"n"`
	Payload    []byte      `msgpack:"p"`
	BlobID     []byte      `msgpack:"b"`
	TTLSeconds uint64      `msgpack:"ttl"`
}

// EncodeEnvelope serializes e to its compact binary wire form.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	w := wireEnvelope{
		Version:    e.Version,
		Type:       e.Type,
		Sender:     e.Sender[:],
		Group:      e.Group[:],
		Cursor:     e.Cursor,
		Timestamp:  e.Timestamp,
		Nonce:      e.Nonce[:],
		Payload:    e.Payload,
		BlobID:     e.BlobID[:],
		TTLSeconds: e.TTLSeconds,
	}
	buf, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return buf, nil
}

// DecodeEnvelope parses a wire frame into an Envelope. It fails with
// ErrInvalidMessage if the version is unrecognized, a fixed-width field has
// the wrong size, or trailing bytes remain after the record.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	reader := bytes.NewReader(data)
	decoder := msgpack.NewDecoder(reader)

	var w wireEnvelope
	if err := decoder.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if reader.Len() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidMessage, reader.Len())
	}
	if w.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: unknown protocol version %d", ErrInvalidMessage, w.Version)
	}
	if len(w.Sender) != len(DeviceID{}) {
		return nil, fmt.Errorf("%w: sender device id wrong size %d", ErrInvalidMessage, len(w.Sender))
	}
	if len(w.Group) != len(GroupID{}) {
		return nil, fmt.Errorf("%w: group id wrong size %d", ErrInvalidMessage, len(w.Group))
	}
	if len(w.Nonce) != 24 {
		return nil, fmt.Errorf("%w: nonce wrong size %d", ErrInvalidMessage, len(w.Nonce))
	}
	if len(w.BlobID) != len(BlobID{}) {
		return nil, fmt.Errorf("%w: blob id wrong size %d", ErrInvalidMessage, len(w.BlobID))
	}

	var e Envelope
	e.Version = w.Version
	e.Type = w.Type
	copy(e.Sender[:], w.Sender)
	copy(e.Group[:], w.Group)
	e.Cursor = w.Cursor
	e.Timestamp = w.Timestamp
	copy(e.Nonce[:], w.Nonce)
	e.Payload = w.Payload
	copy(e.BlobID[:], w.BlobID)
	e.TTLSeconds = w.TTLSeconds
	return &e, nil
}
