package client

import (
	"context"
	"fmt"

	"github.com/zerok-sync/sync/noise"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// sendEnvelope encodes e and writes it to peer through session's hybrid
// AEAD cascade.
func sendEnvelope(ctx context.Context, t transport.Capability, session *noise.Session, peer transport.NodeID, e *wire.Envelope) error {
	raw, err := wire.EncodeEnvelope(e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	frame, err := session.Encrypt(raw)
	if err != nil {
		return fmt.Errorf("encrypt transport frame: %w", err)
	}
	if err := t.Send(ctx, peer, frame); err != nil {
		return fmt.Errorf("send transport frame: %w", err)
	}
	return nil
}

// recvEnvelope blocks for the next frame from peer, decrypting and decoding
// it. A frame that fails to decrypt or decode is reported as
// ErrDecryptFailed or wire.ErrInvalidMessage; the caller must drop the frame
// and keep the session open (spec §4.3: decryption failure never tears down
// a session by itself). A transport receive error is returned wrapped as
// is, and recvLoop treats it as a lost connection.
func recvEnvelope(ctx context.Context, t transport.Capability, session *noise.Session, peer transport.NodeID) (*wire.Envelope, error) {
	frame, err := t.Recv(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("receive transport frame: %w", err)
	}
	raw, err := session.Decrypt(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	e, err := wire.DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return e, nil
}
