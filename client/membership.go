package client

import (
	"context"
	"fmt"

	"github.com/zerok-sync/sync/wire"
)

// RevokeDevice asks the relay to remove device from the group (spec §6.4
// revoke_device). Only meaningful from a device the relay deployment
// trusts to issue revocations; the relay itself enforces any authorization
// policy beyond group membership.
func (c *Client) RevokeDevice(ctx context.Context, device wire.DeviceID, reason string) error {
	return c.sendControlNoReply(ctx, wire.TypeRevokeDevice, wire.RevokeDevice{Device: device, Reason: reason})
}

// ForceDelete deletes a blob this device sent, bypassing the all-acked
// requirement (spec §6.4 force_delete, §4.5 On Delete with force=true).
func (c *Client) ForceDelete(ctx context.Context, blobID wire.BlobID) error {
	return c.sendControlNoReply(ctx, wire.TypeDelete, wire.Delete{BlobID: blobID, Force: true})
}

// Delete requests removal of a blob, honoring the all-acked requirement.
func (c *Client) Delete(ctx context.Context, blobID wire.BlobID) error {
	return c.sendControlNoReply(ctx, wire.TypeDelete, wire.Delete{BlobID: blobID, Force: false})
}

// RegisterPushToken binds a platform push token to this device (spec §6.4
// register_push_token, §6.3).
func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	return c.sendControlNoReply(ctx, wire.TypeRegisterPush, wire.RegisterPush{Token: token})
}

// UnregisterPushToken removes this device's push binding (spec §6.4
// unregister_push_token).
func (c *Client) UnregisterPushToken(ctx context.Context) error {
	return c.sendControlNoReply(ctx, wire.TypeUnregisterPush, wire.UnregisterPush{})
}

// sendControlNoReply encodes and sends a control message that the relay
// does not ack at the envelope level; the caller observes success via the
// absence of a subsequent TypeError frame on the event stream.
func (c *Client) sendControlNoReply(ctx context.Context, msgType wire.MessageType, payload interface{}) error {
	c.mu.Lock()
	session := c.session
	if c.membership == nil {
		c.mu.Unlock()
		return ErrGroupNotConfigured
	}
	peer := c.membership.RelayNodeID
	c.mu.Unlock()
	if session == nil {
		return ErrNotConnected
	}

	encoded, err := wire.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	return sendEnvelope(ctx, c.transport, session, peer, c.buildEnvelope(msgType, encoded, [24]byte{}))
}
