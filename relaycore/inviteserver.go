package relaycore

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/invite"
	"github.com/zerok-sync/sync/transport"
)

// ServeInviteRequest handles exactly one short-code invite post or fetch
// (spec §4.2) over peer's raw transport frame: no Noise handshake, since
// the posting device has no group membership yet and the fetching device
// may have no relay-recognized identity at all. The lookup_key/decrypt_key
// split is the only credential either side needs.
func (s *Server) ServeInviteRequest(ctx context.Context, peer transport.NodeID) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "ServeInviteRequest",
		"package":  "relaycore",
	})

	raw, err := s.transport.Recv(ctx, peer)
	if err != nil {
		return fmt.Errorf("receive invite transfer frame: %w", err)
	}
	var frame invite.TransferFrame
	if err := invite.DecodeTransfer(raw, &frame); err != nil {
		return fmt.Errorf("decode invite transfer frame: %w", err)
	}

	sourceKey := fmt.Sprintf("%x", peer)

	switch frame.Kind {
	case invite.TransferPostInviteRequest:
		var req invite.PostInviteRequest
		if err := invite.DecodeTransfer(frame.Payload, &req); err != nil {
			return fmt.Errorf("decode post-invite request: %w", err)
		}
		seconds, err := crypto.SafeUint64ToInt64(req.ExpiresInSeconds)
		if err != nil {
			return s.sendTransferResponse(ctx, peer, invite.TransferPostInviteResponse,
				invite.PostInviteResponse{OK: false, Error: fmt.Sprintf("invalid expiry: %v", err)})
		}
		expiresAt := time.Now().Add(time.Duration(seconds) * time.Second)
		resp := invite.PostInviteResponse{OK: true}
		if err := s.relay.PostInvite(sourceKey, req.LookupKey, req.Ciphertext, expiresAt); err != nil {
			logger.WithFields(logrus.Fields{"error_type": "post_invite_failed", "error": err.Error()}).Debug("Rejected PostInviteRequest")
			resp = invite.PostInviteResponse{OK: false, Error: err.Error()}
		}
		return s.sendTransferResponse(ctx, peer, invite.TransferPostInviteResponse, resp)

	case invite.TransferFetchInviteRequest:
		var req invite.FetchInviteRequest
		if err := invite.DecodeTransfer(frame.Payload, &req); err != nil {
			return fmt.Errorf("decode fetch-invite request: %w", err)
		}
		ciphertext, err := s.relay.FetchInvite(sourceKey, req.LookupKey)
		var resp invite.FetchInviteResponse
		if err != nil {
			resp = invite.FetchInviteResponse{Found: false, Error: err.Error()}
		} else {
			resp = invite.FetchInviteResponse{Found: true, Ciphertext: ciphertext}
		}
		return s.sendTransferResponse(ctx, peer, invite.TransferFetchInviteResponse, resp)

	default:
		return fmt.Errorf("unknown invite transfer kind %d", frame.Kind)
	}
}

func (s *Server) sendTransferResponse(ctx context.Context, peer transport.NodeID, kind invite.TransferKind, v interface{}) error {
	payload, err := invite.EncodeTransfer(v)
	if err != nil {
		return fmt.Errorf("encode invite transfer response: %w", err)
	}
	frame, err := invite.EncodeTransfer(invite.TransferFrame{Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode invite transfer frame: %w", err)
	}
	return s.transport.Send(ctx, peer, frame)
}
