package client

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/content"
	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/noise"
	"github.com/zerok-sync/sync/syncstate"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// recvLoop owns one connection's inbound traffic: it decodes every frame,
// applies the resulting event to the state machine, and executes the
// actions the machine emits. It runs until ctx is canceled (by Disconnect)
// or the connection is lost, in which case it schedules a reconnect.
func (c *Client) recvLoop(ctx context.Context, peer transport.NodeID) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "recvLoop",
		"package":  "client",
	})

	for {
		env, err := recvEnvelope(ctx, c.transport, c.currentSession(), peer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrDecryptFailed) {
				logger.WithFields(logrus.Fields{"error_type": "decrypt_failed"}).Warn("Dropping undecryptable frame")
				c.emit(Event{Kind: EventError, Err: err})
				continue
			}
			if errors.Is(err, wire.ErrInvalidMessage) {
				logger.WithFields(logrus.Fields{"error_type": "invalid_message"}).Warn("Dropping malformed frame")
				continue
			}
			c.handleConnectionLost(err)
			return
		}

		c.handleEnvelope(env)
	}
}

func (c *Client) currentSession() *noise.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) handleEnvelope(env *wire.Envelope) {
	switch env.Type {
	case wire.TypePushAck:
		var ack wire.PushAck
		if err := wire.DecodePayload(env.Payload, &ack); err != nil {
			return
		}
		c.pending.Ack(ack.BlobID)
		c.persistPending()
		c.ackMu.Lock()
		waiter, ok := c.ackWaiters[ack.BlobID]
		c.ackMu.Unlock()
		if ok {
			select {
			case waiter <- ack.Cursor:
			default:
			}
		}
		c.machine.Apply(syncstate.Event{Kind: syncstate.EventMessageReceived, MessageType: wire.TypePushAck, BlobID: ack.BlobID})
		c.emit(Event{Kind: EventBlobPushed, BlobID: ack.BlobID})

	case wire.TypeNotify:
		var notify wire.Notify
		if err := wire.DecodePayload(env.Payload, &notify); err != nil {
			return
		}
		c.recordDevice(notify.Sender)
		c.machine.Apply(syncstate.Event{Kind: syncstate.EventMessageReceived, MessageType: wire.TypeNotify, Cursor: notify.Cursor})
		c.emit(Event{Kind: EventBlobAvailable, Cursor: notify.Cursor})

	case wire.TypeDeviceRevoked:
		var revoked wire.DeviceRevoked
		if err := wire.DecodePayload(env.Payload, &revoked); err != nil {
			return
		}
		if revoked.Device == c.DeviceID() {
			c.emit(Event{Kind: EventError, Err: errDeviceRevokedSelf})
		}

	case wire.TypeError:
		var errMsg wire.ErrorMessage
		if err := wire.DecodePayload(env.Payload, &errMsg); err != nil {
			return
		}
		c.emit(Event{Kind: EventError, Err: errors.New(errMsg.Message)})

	case wire.TypeContentRef:
		c.handleContentRef(env)

	case wire.TypeContentAck:
		aad := c.blobAssociatedData(env.Sender, env.BlobID)
		payload, err := crypto.OpenEnvelopeWithNonce(c.envelopeKey, env.Nonce[:], env.Payload, aad)
		if err != nil {
			return
		}
		var ack wire.ContentAck
		if err := wire.DecodePayload(payload, &ack); err != nil {
			return
		}
		c.emit(Event{Kind: EventContentAcked, BlobID: ack.BlobID, ContentHash: ack.ContentHash})

	default:
		// Unknown or not-yet-handled message type; ignore rather than
		// tear down the session over it.
	}
}

// handleContentRef decrypts an incoming content-ref descriptor and, if this
// device already holds the referenced ciphertext in its content store,
// kicks off verification and decryption in the background (spec §4.4's
// receive path). A ContentRef for a blob this device never received the
// ciphertext for is surfaced only as EventContentAvailable: the wire
// taxonomy has no peer-to-peer fetch message, so there is nothing more to
// do but wait for the content store to be populated some other way.
func (c *Client) handleContentRef(env *wire.Envelope) {
	aad := c.blobAssociatedData(env.Sender, env.BlobID)
	payload, err := crypto.OpenEnvelopeWithNonce(c.envelopeKey, env.Nonce[:], env.Payload, aad)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"error_type": "content_ref_decrypt_failed"}).Warn("Dropping undecryptable content ref")
		return
	}
	var ref wire.ContentRef
	if err := wire.DecodePayload(payload, &ref); err != nil {
		return
	}
	c.recordDevice(env.Sender)
	c.emit(Event{Kind: EventContentAvailable, BlobID: ref.BlobID, ContentHash: ref.ContentHash})

	go c.fetchAndVerifyContent(ref)
}

// fetchAndVerifyContent derives the blob's content key, verifies its
// ciphertext against the hash carried in ref, decrypts it, and acks the
// sender. It returns silently if the ciphertext is not present locally.
func (c *Client) fetchAndVerifyContent(ref wire.ContentRef) {
	if !c.contentStore.Has(ref.ContentHash) {
		return
	}
	ciphertext, err := c.contentStore.Get(ref.ContentHash)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"error_type": "content_fetch_failed", "error": err.Error()}).Warn("Failed to read stored content ciphertext")
		return
	}

	contentKey, err := crypto.DeriveContentKey(c.contentSubKey, ref.BlobID.String())
	if err != nil {
		c.logger.WithFields(logrus.Fields{"error_type": "content_key_derive_failed", "error": err.Error()}).Warn("Failed to derive content key")
		return
	}
	defer crypto.ZeroBytes(contentKey)

	plaintext, err := content.DecryptVerified(contentKey, ref.EncryptionNonce, ciphertext, ref.ContentHash)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"error_type": "content_decrypt_failed", "error": err.Error()}).Warn("Dropping corrupt or undecryptable content blob")
		return
	}

	c.emit(Event{Kind: EventContentReceived, BlobID: ref.BlobID, ContentHash: ref.ContentHash, Plaintext: plaintext})
	c.sendContentAck(ref.BlobID, ref.ContentHash)
}

// sendContentAck acknowledges a fetched-and-verified content blob back to
// its sender via the relay. Failures are logged and otherwise swallowed:
// the sender's retention window (spec §4.4) means a missed ack is not
// fatal, only delays garbage collection of the sender's copy.
func (c *Client) sendContentAck(blobID wire.BlobID, contentHash wire.ContentHash) {
	c.mu.Lock()
	session := c.session
	var peer transport.NodeID
	if c.membership != nil {
		peer = c.membership.RelayNodeID
	}
	c.mu.Unlock()
	if session == nil {
		return
	}

	ack := wire.ContentAck{BlobID: blobID, ContentHash: contentHash}
	payload, err := wire.EncodePayload(ack)
	if err != nil {
		return
	}
	nonce, err := randomNonce()
	if err != nil {
		return
	}
	aad := c.pushAssociatedData(blobID)
	ciphertext, err := crypto.SealEnvelopeWithNonce(c.envelopeKey, nonce[:], payload, aad)
	if err != nil {
		return
	}
	env := c.buildEnvelope(wire.TypeContentAck, ciphertext, nonce)
	env.BlobID = blobID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sendEnvelope(ctx, c.transport, session, peer, env); err != nil {
		c.logger.WithFields(logrus.Fields{"error_type": "content_ack_send_failed", "error": err.Error()}).Warn("Failed to send content ack")
	}
}

var errDeviceRevokedSelf = errors.New("this device was revoked from the group")

// handleConnectionLost transitions the machine to Reconnecting and starts a
// background reconnect loop, mirroring Connect's own retry behavior.
func (c *Client) handleConnectionLost(cause error) {
	c.mu.Lock()
	c.session = nil
	epoch := c.epoch
	c.mu.Unlock()

	c.machine.Apply(syncstate.Event{Kind: syncstate.EventDisconnected, Reason: cause.Error()})
	c.emit(Event{Kind: EventDisconnected, Reason: cause.Error()})

	go func() {
		ctx := context.Background()
		for {
			c.mu.Lock()
			stale := c.epoch != epoch
			c.mu.Unlock()
			if stale {
				return
			}

			if _, err := c.attemptConnect(ctx); err == nil {
				return
			}
			c.machine.Apply(syncstate.Event{Kind: syncstate.EventConnectFailed})
			status := c.machine.Status()
			if status.State != syncstate.Reconnecting {
				return
			}
			delay := c.backoffParams.AddJitter(c.backoffParams.BaseDelay(status.ReconnectCount), rand.Float64())
			time.Sleep(time.Duration(delay * float64(time.Second)))
			c.machine.Apply(syncstate.Event{Kind: syncstate.EventReconnectTimer})
		}
	}()
}
