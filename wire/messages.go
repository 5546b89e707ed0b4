package wire

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Hello announces a device, group, and last-seen cursor to the relay.
type Hello struct {
	LastCursor Cursor `msgpack:"last_cursor"`
}

// Welcome is the relay's acceptance response to Hello.
type Welcome struct {
	MaxCursor    Cursor `msgpack:"max_cursor"`
	PendingCount uint32 `msgpack:"pending_count"`
}

// Push submits an encrypted payload with a blob id and TTL in seconds (0
// means "use the relay default").
type Push struct {
	BlobID     BlobID `msgpack:"blob_id"`
	TTLSeconds uint64 `msgpack:"ttl_seconds"`
}

// PushAck confirms a stored payload and its assigned cursor.
type PushAck struct {
	BlobID BlobID `msgpack:"blob_id"`
	Cursor Cursor `msgpack:"cursor"`
}

// Pull requests blobs strictly after AfterCursor, bounded by Limit.
type Pull struct {
	AfterCursor Cursor `msgpack:"after_cursor"`
	Limit       uint32 `msgpack:"limit"`
}

// PullBatchEntry is one blob in a PullResponse.
type PullBatchEntry struct {
	BlobID    BlobID `msgpack:"blob_id"`
	Cursor    Cursor `msgpack:"cursor"`
	SenderID  DeviceID `msgpack:"sender_id"`
	Nonce     [24]byte `msgpack:"nonce"`
	Payload   []byte   `msgpack:"payload"`
}

// PullResponse is the ordered batch returned for a Pull.
type PullResponse struct {
	Blobs     []PullBatchEntry `msgpack:"blobs"`
	MaxCursor Cursor           `msgpack:"max_cursor"`
	HasMore   bool             `msgpack:"has_more"`
}

// Presence is a client heartbeat; it carries no fields.
type Presence struct{}

// Notify tells a client a new blob exists at Cursor from Sender.
type Notify struct {
	Cursor Cursor   `msgpack:"cursor"`
	Sender DeviceID `msgpack:"sender"`
}

// Delete requests removal of a blob. Force bypasses the all-acked
// requirement but only succeeds for the blob's original sender.
type Delete struct {
	BlobID BlobID `msgpack:"blob_id"`
	Force  bool   `msgpack:"force"`
}

// RevokeDevice removes a device from the group.
type RevokeDevice struct {
	Device DeviceID `msgpack:"device"`
	Reason string   `msgpack:"reason"`
}

// DeviceRevoked notifies group members that a device was revoked.
type DeviceRevoked struct {
	Device DeviceID `msgpack:"device"`
	Reason string   `msgpack:"reason"`
}

// RegisterPush binds a push-notification token to the sending device.
type RegisterPush struct {
	Token string `msgpack:"token"`
}

// UnregisterPush removes a previously registered push binding.
type UnregisterPush struct{}

// ContentRef is metadata for a large content blob transferred out of band.
type ContentRef struct {
	BlobID         BlobID      `msgpack:"blob_id"`
	ContentHash    ContentHash `msgpack:"content_hash"`
	EncryptionNonce [24]byte   `msgpack:"encryption_nonce"`
	ContentSize    uint64      `msgpack:"content_size"`
	EncryptedSize  uint64      `msgpack:"encrypted_size"`
	MimeType       string      `msgpack:"mime_type"`
	ThumbnailHash  *ContentHash `msgpack:"thumbnail_hash,omitempty"`
	ThumbnailNonce *[24]byte    `msgpack:"thumbnail_nonce,omitempty"`
}

// ContentAck acknowledges a completed content transfer.
type ContentAck struct {
	BlobID      BlobID      `msgpack:"blob_id"`
	ContentHash ContentHash `msgpack:"content_hash"`
}

// ErrorMessage carries a numeric error code plus a human-readable string.
type ErrorMessage struct {
	Code    uint32 `msgpack:"code"`
	Message string `msgpack:"message"`
}

// EncodePayload msgpack-encodes any control message for use as an
// Envelope's Payload field.
func EncodePayload(v interface{}) ([]byte, error) {
	buf, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf, nil
}

// DecodePayload decodes an Envelope's Payload field into v, rejecting any
// trailing bytes so truncation or over-long frames are never silently
// accepted.
func DecodePayload(data []byte, v interface{}) error {
	reader := bytes.NewReader(data)
	decoder := msgpack.NewDecoder(reader)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if reader.Len() > 0 {
		return fmt.Errorf("%w: %d trailing bytes in payload", ErrInvalidMessage, reader.Len())
	}
	return nil
}
