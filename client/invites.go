package client

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/invite"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// CreateInvite generates a fresh group (new GroupID and GroupSecret) and
// returns the invite record a second device redeems via JoinInvite (spec
// §4.2, §6.4 create_invite). The caller typically renders the record as a
// QR code or short code via the invite package's codec helpers.
func (c *Client) CreateInvite(relay transport.NodeID, expiresIn time.Duration) (*invite.Record, *GroupMembership, error) {
	var groupID wire.GroupID
	if _, err := rand.Read(groupID[:]); err != nil {
		return nil, nil, fmt.Errorf("generate group id: %w", err)
	}
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, nil, fmt.Errorf("generate group secret: %w", err)
	}
	var salt [crypto.GroupKeySaltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, nil, fmt.Errorf("generate group key salt: %w", err)
	}

	membership := &GroupMembership{
		GroupID:     groupID,
		GroupSecret: secret,
		Salt:        salt,
		RelayNodeID: relay,
	}
	if err := c.bindMembership(membership); err != nil {
		return nil, nil, err
	}

	record := &invite.Record{
		Version:         invite.ProtocolVersion,
		RelayNodeID:     relay[:],
		GroupID:         groupID,
		GroupSecret:     secret,
		Salt:            salt,
		CreatorDeviceID: c.DeviceID(),
		ExpiresAt:       time.Now().Add(expiresIn).Unix(),
	}
	return record, membership, nil
}

// JoinInvite redeems an invite record, binding this client to the group it
// describes (spec §6.4 join_invite).
func (c *Client) JoinInvite(record *invite.Record, now time.Time) error {
	if record.IsExpired(now.Unix()) {
		return ErrInviteExpired
	}

	var relay transport.NodeID
	copy(relay[:], record.RelayNodeID)

	membership := &GroupMembership{
		GroupID:     record.GroupID,
		GroupSecret: record.GroupSecret,
		Salt:        record.Salt,
		RelayNodeID: relay,
	}
	return c.bindMembership(membership)
}

// CreateShortCodeInvite generates a fresh group the same way CreateInvite
// does, then posts the invite record, AEAD-sealed under a freshly
// generated short code, to relay for single-use, delete-on-read retrieval
// (spec §4.2's short-code path). Only LookupKey and the sealed record
// cross the network; DecryptKey is never transmitted, so the relay cannot
// read the group secret it is storing ciphertext for.
func (c *Client) CreateShortCodeInvite(ctx context.Context, relay transport.NodeID, expiresIn time.Duration) (invite.ShortCode, *GroupMembership, error) {
	record, membership, err := c.CreateInvite(relay, expiresIn)
	if err != nil {
		return invite.ShortCode{}, nil, err
	}

	code, err := invite.GenerateShortCode()
	if err != nil {
		return invite.ShortCode{}, nil, err
	}
	ciphertext, err := invite.EncryptForShortCode(record, code)
	if err != nil {
		return invite.ShortCode{}, nil, err
	}

	req := invite.PostInviteRequest{
		LookupKey:        code.LookupKey,
		Ciphertext:       ciphertext,
		ExpiresInSeconds: uint64(expiresIn.Seconds()),
	}
	var resp invite.PostInviteResponse
	if err := c.sendInviteTransfer(ctx, relay, invite.TransferPostInviteRequest, req, invite.TransferPostInviteResponse, &resp); err != nil {
		return invite.ShortCode{}, nil, err
	}
	if !resp.OK {
		return invite.ShortCode{}, nil, fmt.Errorf("%w: %s", ErrInviteRejected, resp.Error)
	}
	return code, membership, nil
}

// JoinShortCodeInvite fetches and redeems a short-code invite (spec §4.2):
// it asks relay for the ciphertext stored under code.LookupKey, decrypts it
// locally with code.DecryptKey, and binds this client to the group the
// decrypted record describes.
func (c *Client) JoinShortCodeInvite(ctx context.Context, relay transport.NodeID, code invite.ShortCode, now time.Time) error {
	req := invite.FetchInviteRequest{LookupKey: code.LookupKey}
	var resp invite.FetchInviteResponse
	if err := c.sendInviteTransfer(ctx, relay, invite.TransferFetchInviteRequest, req, invite.TransferFetchInviteResponse, &resp); err != nil {
		return err
	}
	if !resp.Found {
		return fmt.Errorf("%w: %s", ErrShortCodeNotFound, resp.Error)
	}

	record, err := invite.DecryptShortCode(resp.Ciphertext, code)
	if err != nil {
		return err
	}
	return c.JoinInvite(record, now)
}

// sendInviteTransfer dials relay over the raw transport (no Noise
// handshake: see relaycore.Server.ServeInviteRequest for why short-code
// exchange skips session establishment entirely), sends one request frame,
// and decodes the matching response frame.
func (c *Client) sendInviteTransfer(ctx context.Context, relay transport.NodeID, reqKind invite.TransferKind, req interface{}, respKind invite.TransferKind, resp interface{}) error {
	if err := c.transport.Connect(ctx, relay); err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer c.transport.Disconnect(relay)

	payload, err := invite.EncodeTransfer(req)
	if err != nil {
		return fmt.Errorf("encode invite transfer request: %w", err)
	}
	frame, err := invite.EncodeTransfer(invite.TransferFrame{Kind: reqKind, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode invite transfer frame: %w", err)
	}
	if err := c.transport.Send(ctx, relay, frame); err != nil {
		return fmt.Errorf("send invite transfer request: %w", err)
	}

	raw, err := c.transport.Recv(ctx, relay)
	if err != nil {
		return fmt.Errorf("receive invite transfer response: %w", err)
	}
	var respFrame invite.TransferFrame
	if err := invite.DecodeTransfer(raw, &respFrame); err != nil {
		return fmt.Errorf("decode invite transfer response frame: %w", err)
	}
	if respFrame.Kind != respKind {
		return fmt.Errorf("%w: got invite transfer kind %d", ErrUnexpectedMessage, respFrame.Kind)
	}
	if err := invite.DecodeTransfer(respFrame.Payload, resp); err != nil {
		return fmt.Errorf("decode invite transfer response: %w", err)
	}
	return nil
}
