package invite

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// PostInviteRequest asks a relay to store a short-code invite's ciphertext
// under LookupKey, to be fetched exactly once before it expires (spec
// §4.2). It travels as a standalone frame over transport.Capability rather
// than a wire.Envelope: short-code exchange happens before the posting or
// fetching device has a group (or, for the fetcher, even an identity) the
// relay recognizes, so there is nothing for a Noise session to authenticate
// yet.
type PostInviteRequest struct {
	LookupKey        string `msgpack:"lookup_key"`
	Ciphertext       []byte `msgpack:"ciphertext"`
	ExpiresInSeconds uint64 `msgpack:"expires_in_seconds"`
}

// PostInviteResponse acknowledges a PostInviteRequest.
type PostInviteResponse struct {
	OK    bool   `msgpack:"ok"`
	Error string `msgpack:"error,omitempty"`
}

// FetchInviteRequest asks a relay for the ciphertext posted under
// LookupKey. A successful fetch deletes it relay-side (spec §4.2
// delete-on-read).
type FetchInviteRequest struct {
	LookupKey string `msgpack:"lookup_key"`
}

// FetchInviteResponse carries the fetched ciphertext, or Found=false if
// LookupKey had nothing stored (never existed, expired, or already
// fetched).
type FetchInviteResponse struct {
	Found      bool   `msgpack:"found"`
	Ciphertext []byte `msgpack:"ciphertext,omitempty"`
	Error      string `msgpack:"error,omitempty"`
}

// TransferKind tags which request or response a TransferFrame carries, the
// short-code side channel's equivalent of wire.Envelope's Type byte.
type TransferKind uint8

const (
	TransferPostInviteRequest TransferKind = iota + 1
	TransferPostInviteResponse
	TransferFetchInviteRequest
	TransferFetchInviteResponse
)

// TransferFrame is the one message shape sent over the raw transport frame
// used for short-code invite post/fetch: a kind tag plus an
// EncodeTransfer-encoded payload of the matching request/response type.
type TransferFrame struct {
	Kind    TransferKind `msgpack:"k"`
	Payload []byte       `msgpack:"p"`
}

// EncodeTransfer msgpack-encodes any of the request/response types above.
func EncodeTransfer(v interface{}) ([]byte, error) {
	buf, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode invite transfer message: %w", err)
	}
	return buf, nil
}

// DecodeTransfer decodes a frame produced by EncodeTransfer, rejecting
// trailing bytes the same way wire.DecodePayload does.
func DecodeTransfer(data []byte, v interface{}) error {
	reader := bytes.NewReader(data)
	decoder := msgpack.NewDecoder(reader)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	if reader.Len() > 0 {
		return fmt.Errorf("%w: %d trailing bytes in invite transfer message", ErrInvalidInvite, reader.Len())
	}
	return nil
}
