package client

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/content"
	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/limits"
	"github.com/zerok-sync/sync/noise"
	"github.com/zerok-sync/sync/syncstate"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// Client is the runtime binding the pure syncstate machine to a real
// transport and real cryptography (spec §4.3). A Client is safe for
// concurrent use from multiple goroutines.
type Client struct {
	mu sync.Mutex

	keyPair     *crypto.KeyPair
	secretStore crypto.SecretStore
	deviceClass crypto.DeviceClass

	membership    *GroupMembership
	envelopeKey   []byte
	contentSubKey []byte

	transport      transport.Capability
	backoffParams  syncstate.BackoffParams
	pushAckTimeout time.Duration
	store          Store
	contentStore   content.Store

	machine       *syncstate.Machine
	pending       *syncstate.PendingBuffer
	cursorTracker *syncstate.CursorTracker

	session    *noise.Session
	connCancel context.CancelFunc

	events chan Event

	ackMu      sync.Mutex
	ackWaiters map[wire.BlobID]chan wire.Cursor

	// knownDevices is a roster inferred from traffic (Notify senders, pull
	// batch senders) rather than a dedicated query message; the wire
	// taxonomy has no list-devices request/response pair.
	knownDevices map[wire.DeviceID]time.Time

	// epoch increments on every explicit Disconnect, so a background
	// reconnect loop started before the Disconnect can recognize it is
	// stale and stop retrying instead of racing a fresh Connect.
	epoch int64

	logger *logrus.Entry
}

// New constructs a Client from opts. If opts.Membership is set the client
// is immediately able to Connect; otherwise JoinInvite must be called
// first.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		return nil, errors.New("client: nil options")
	}
	if opts.SecretStore == nil {
		return nil, errors.New("client: SecretStore is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("client: Transport is required")
	}

	keyPair, err := crypto.LoadOrGenerateDeviceKey(opts.SecretStore, opts.DeviceKeyName)
	if err != nil {
		return nil, fmt.Errorf("load device identity: %w", err)
	}

	store := opts.PendingStore
	if store == nil {
		store = NewMemoryStore()
	}
	ackTimeout := opts.PushAckTimeout
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	bufSize := opts.EventBufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	contentStore := opts.ContentStore
	if contentStore == nil {
		contentStore = content.NewMemoryStore()
	}

	c := &Client{
		keyPair:        keyPair,
		secretStore:    opts.SecretStore,
		deviceClass:    opts.DeviceClass,
		transport:      opts.Transport,
		backoffParams:  opts.Backoff,
		pushAckTimeout: ackTimeout,
		store:          store,
		contentStore:   contentStore,
		pending:        syncstate.NewPendingBuffer(syncstate.DefaultMaxPending),
		cursorTracker:  syncstate.NewCursorTracker(0),
		machine:        syncstate.NewMachine(opts.Backoff),
		events:         make(chan Event, bufSize),
		ackWaiters:     make(map[wire.BlobID]chan wire.Cursor),
		knownDevices:   make(map[wire.DeviceID]time.Time),
		logger: logrus.WithFields(logrus.Fields{
			"package": "client",
		}),
	}

	if opts.Membership != nil {
		if err := c.bindMembership(opts.Membership); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// bindMembership derives the group's sub-keys and restores any persisted
// cursor/pending-push state for it.
func (c *Client) bindMembership(m *GroupMembership) error {
	groupKey, err := crypto.StretchGroupSecret(m.GroupSecret[:], m.Salt[:], c.deviceClass)
	if err != nil {
		return fmt.Errorf("stretch group secret: %w", err)
	}
	defer crypto.ZeroBytes(groupKey)

	envelopeKey, err := crypto.DeriveSubKey(groupKey, "envelope-aead")
	if err != nil {
		return fmt.Errorf("derive envelope key: %w", err)
	}
	contentSubKey, err := crypto.DeriveSubKey(groupKey, "content")
	if err != nil {
		return fmt.Errorf("derive content sub-key: %w", err)
	}

	lastCursor, err := c.store.LoadCursor(m.GroupID)
	if err != nil {
		return fmt.Errorf("load persisted cursor: %w", err)
	}
	persistedPending, err := c.store.LoadPending(m.GroupID)
	if err != nil {
		return fmt.Errorf("load persisted pending buffer: %w", err)
	}

	c.membership = m
	c.envelopeKey = envelopeKey
	c.contentSubKey = contentSubKey
	c.cursorTracker = syncstate.NewCursorTracker(lastCursor)
	for _, push := range persistedPending {
		_ = c.pending.Enqueue(push)
	}
	return nil
}

// DeviceID returns this client's device identity.
func (c *Client) DeviceID() wire.DeviceID {
	var id wire.DeviceID
	copy(id[:], c.keyPair.Public[:])
	return id
}

// Status returns the four-state user-visible connection indicator.
func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Client) statusLocked() ConnectionStatus {
	switch c.machine.Status().State {
	case syncstate.Connected:
		if c.pending.Len() == 0 {
			return StatusSynced
		}
		return StatusPending
	case syncstate.Reconnecting:
		return StatusFailed
	default:
		return StatusOffline
	}
}

// LastCursor returns the highest cursor applied to this client's group.
func (c *Client) LastCursor() wire.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursorTracker.LastApplied()
}

// Subscribe returns the client's single-consumer event stream (spec §4.3).
// Calling it more than once returns the same channel; the engine does not
// fan events out to multiple subscribers.
func (c *Client) Subscribe() <-chan Event {
	return c.events
}

// recordDevice notes a device as active in this group, for ListDevices.
func (c *Client) recordDevice(id wire.DeviceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.knownDevices[id] = time.Now()
}

// DeviceInfo is one entry in a ListDevices result.
type DeviceInfo struct {
	Device   wire.DeviceID
	LastSeen time.Time
}

// ListDevices returns the devices observed in this group's traffic so far
// (spec §6.4 list_devices). This is a local roster built from Notify and
// pull-batch senders, not a relay round trip: the wire taxonomy has no
// dedicated query for it, and every envelope already names its sender.
func (c *Client) ListDevices() []DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DeviceInfo, 0, len(c.knownDevices))
	for id, lastSeen := range c.knownDevices {
		out = append(out, DeviceInfo{Device: id, LastSeen: lastSeen})
	}
	return out
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.WithFields(logrus.Fields{
			"error_type": "event_buffer_full",
		}).Warn("Dropping event: subscriber is not draining the event channel fast enough")
	}
}

// Connect feeds ConnectRequested and blocks, retrying with jittered
// backoff, until the session reaches Connected or ctx is done.
func (c *Client) Connect(ctx context.Context) (*ConnectionInfo, error) {
	c.mu.Lock()
	if c.membership == nil {
		c.mu.Unlock()
		return nil, ErrGroupNotConfigured
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.mu.Unlock()

	c.machine.Apply(syncstate.Event{Kind: syncstate.EventConnectRequested})

	for {
		info, err := c.attemptConnect(ctx)
		if err == nil {
			return info, nil
		}
		c.logger.WithFields(logrus.Fields{
			"error_type": "connect_attempt_failed",
			"error":      err.Error(),
		}).Debug("Connect attempt failed, will retry with backoff")

		c.machine.Apply(syncstate.Event{Kind: syncstate.EventConnectFailed})
		status := c.machine.Status()
		delay := c.backoffParams.AddJitter(c.backoffParams.BaseDelay(status.ReconnectCount), rand.Float64())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delay * float64(time.Second))):
		}
		c.machine.Apply(syncstate.Event{Kind: syncstate.EventReconnectTimer})
	}
}

// attemptConnect runs one transport-connect + Noise handshake + Hello/
// Welcome exchange, leaving the state machine in Connected on success.
func (c *Client) attemptConnect(ctx context.Context) (*ConnectionInfo, error) {
	peer := c.membership.RelayNodeID

	if err := c.transport.Connect(ctx, peer); err != nil {
		return nil, fmt.Errorf("transport connect: %w", err)
	}

	session, err := dialHandshake(ctx, c.transport, peer, c.keyPair.Private)
	if err != nil {
		return nil, fmt.Errorf("noise handshake: %w", err)
	}

	c.machine.Apply(syncstate.Event{Kind: syncstate.EventConnectSucceeded})

	hello := wire.Hello{LastCursor: c.cursorTracker.LastApplied()}
	payload, err := wire.EncodePayload(hello)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("encode hello: %w", err)
	}
	env := c.buildEnvelope(wire.TypeHello, payload, [24]byte{})
	if err := sendEnvelope(ctx, c.transport, session, peer, env); err != nil {
		session.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	resp, err := recvEnvelope(ctx, c.transport, session, peer)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("await welcome: %w", err)
	}
	if resp.Type != wire.TypeWelcome {
		session.Close()
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedMessage, resp.Type)
	}
	var welcome wire.Welcome
	if err := wire.DecodePayload(resp.Payload, &welcome); err != nil {
		session.Close()
		return nil, fmt.Errorf("decode welcome: %w", err)
	}

	c.machine.Apply(syncstate.Event{Kind: syncstate.EventHandshakeCompleted, Cursor: welcome.MaxCursor})

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.session = session
	c.connCancel = cancel
	c.mu.Unlock()

	go c.recvLoop(runCtx, peer)

	c.emit(Event{Kind: EventConnected})
	c.flushPending(ctx, peer)

	return &ConnectionInfo{RelayNodeID: peer, MaxCursor: welcome.MaxCursor}, nil
}

// flushPending resends every push still awaiting acknowledgment, in
// original order, after a (re)connect (spec §4.3 ActionFlushPendingPushes).
func (c *Client) flushPending(ctx context.Context, peer transport.NodeID) {
	for _, push := range c.pending.SnapshotForRetry() {
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session == nil {
			return
		}
		if err := c.sendPushOnWire(ctx, session, peer, push); err != nil {
			c.logger.WithFields(logrus.Fields{
				"error_type": "flush_pending_failed",
				"error":      err.Error(),
			}).Warn("Failed to resend a pending push after reconnect")
		}
	}
}

// Disconnect performs a clean shutdown. Any push still awaiting
// acknowledgment remains in the pending buffer for the next Connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	session := c.session
	var peer transport.NodeID
	if c.membership != nil {
		peer = c.membership.RelayNodeID
	}
	cancel := c.connCancel
	c.session = nil
	c.connCancel = nil
	c.epoch++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		session.Close()
	}
	if c.membership != nil {
		_ = c.transport.Disconnect(peer)
	}

	c.machine = syncstate.NewMachine(c.backoffParams)
	c.persistPending()
	c.emit(Event{Kind: EventDisconnected, Reason: "client requested disconnect"})
	return nil
}

// Close performs a permanent shutdown: it disconnects the transport and
// wipes the device identity key pair. Unlike Disconnect, a Client is not
// usable again after Close.
func (c *Client) Close() error {
	if err := c.Disconnect(); err != nil {
		return err
	}
	c.mu.Lock()
	keyPair := c.keyPair
	c.mu.Unlock()
	return crypto.WipeKeyPair(keyPair)
}

func (c *Client) persistPending() {
	if c.membership == nil {
		return
	}
	if err := c.store.SavePending(c.membership.GroupID, c.pending.SnapshotForRetry()); err != nil {
		c.logger.WithFields(logrus.Fields{
			"error_type": "persist_pending_failed",
			"error":      err.Error(),
		}).Error("Failed to persist pending-push buffer")
	}
}

// PushResult is returned by Push on success.
type PushResult struct {
	BlobID wire.BlobID
	Cursor wire.Cursor
}

// Push enqueues payload for delivery, submitting it immediately if
// connected, and blocks until the relay acknowledges it or ctx/the
// configured ack timeout elapses (spec §4.3).
func (c *Client) Push(ctx context.Context, payload []byte, ttl time.Duration) (*PushResult, error) {
	if err := limits.ValidateBlobSize(payload); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.membership == nil {
		c.mu.Unlock()
		return nil, ErrGroupNotConfigured
	}
	c.mu.Unlock()

	blobID := wire.NewBlobID()
	ttlSeconds := uint64(0)
	if ttl > 0 {
		ttlSeconds = uint64(ttl.Seconds())
	}
	push := syncstate.PendingPush{BlobID: blobID, Plaintext: append([]byte(nil), payload...), TTLSeconds: ttlSeconds}
	if err := c.pending.Enqueue(push); err != nil {
		return nil, err
	}
	c.persistPending()

	waitCtx, cancel := context.WithTimeout(ctx, c.pushAckTimeout)
	defer cancel()

	ackCh := make(chan wire.Cursor, 1)
	c.ackMu.Lock()
	c.ackWaiters[blobID] = ackCh
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.ackWaiters, blobID)
		c.ackMu.Unlock()
	}()

	c.mu.Lock()
	session := c.session
	var peer transport.NodeID
	if c.membership != nil {
		peer = c.membership.RelayNodeID
	}
	c.mu.Unlock()

	if session != nil {
		if err := c.sendPushOnWire(ctx, session, peer, push); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	select {
	case cursor := <-ackCh:
		return &PushResult{BlobID: blobID, Cursor: cursor}, nil
	case <-waitCtx.Done():
		return nil, ErrAckTimeout
	}
}

func (c *Client) sendPushOnWire(ctx context.Context, session *noise.Session, peer transport.NodeID, push syncstate.PendingPush) error {
	nonce, err := randomNonce()
	if err != nil {
		return err
	}
	aad := c.pushAssociatedData(push.BlobID)
	ciphertext, err := crypto.SealEnvelopeWithNonce(c.envelopeKey, nonce[:], push.Plaintext, aad)
	if err != nil {
		return fmt.Errorf("seal push payload: %w", err)
	}

	env := c.buildEnvelope(wire.TypePush, ciphertext, nonce)
	env.BlobID = push.BlobID
	env.TTLSeconds = push.TTLSeconds
	return sendEnvelope(ctx, c.transport, session, peer, env)
}

func (c *Client) pushAssociatedData(blobID wire.BlobID) []byte {
	aad := make([]byte, 0, len(c.membership.GroupID)+len(wire.DeviceID{})+len(blobID))
	aad = append(aad, c.membership.GroupID[:]...)
	aad = append(aad, c.DeviceID().String()...)
	aad = append(aad, blobID[:]...)
	return aad
}

// PushContentResult is returned by PushContent on success.
type PushContentResult struct {
	BlobID      wire.BlobID
	ContentHash wire.ContentHash
}

// PushContent encrypts plaintext as a large-content blob (spec §4.4: a
// per-blob content key via crypto.DeriveContentKey, then encrypt-then-hash
// so the content hash never exposes plaintext), stores the ciphertext in
// the local content store, and sends a ContentRef describing it directly
// to the relay for live forwarding to this group's other online devices.
// Unlike Push, a ContentRef is never queued for an offline recipient: the
// wire taxonomy has no content-ref pull path, only a live forward, so a
// device that is offline when PushContent runs will not see it.
func (c *Client) PushContent(ctx context.Context, plaintext []byte, mimeType string) (*PushContentResult, error) {
	c.mu.Lock()
	if c.membership == nil {
		c.mu.Unlock()
		return nil, ErrGroupNotConfigured
	}
	session := c.session
	peer := c.membership.RelayNodeID
	c.mu.Unlock()
	if session == nil {
		return nil, ErrNotConnected
	}

	blobID := wire.NewBlobID()
	contentKey, err := crypto.DeriveContentKey(c.contentSubKey, blobID.String())
	if err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	defer crypto.ZeroBytes(contentKey)

	sealed, err := content.EncryptThenHash(contentKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal content blob: %w", err)
	}
	if err := c.contentStore.Put(sealed.ContentHash, sealed.Ciphertext); err != nil {
		return nil, fmt.Errorf("store content ciphertext: %w", err)
	}

	ref := wire.ContentRef{
		BlobID:          blobID,
		ContentHash:     sealed.ContentHash,
		EncryptionNonce: sealed.Nonce,
		ContentSize:     uint64(len(plaintext)),
		EncryptedSize:   uint64(len(sealed.Ciphertext)),
		MimeType:        mimeType,
	}
	refPayload, err := wire.EncodePayload(ref)
	if err != nil {
		return nil, fmt.Errorf("encode content ref: %w", err)
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}
	aad := c.pushAssociatedData(blobID)
	ciphertext, err := crypto.SealEnvelopeWithNonce(c.envelopeKey, nonce[:], refPayload, aad)
	if err != nil {
		return nil, fmt.Errorf("seal content ref envelope: %w", err)
	}

	env := c.buildEnvelope(wire.TypeContentRef, ciphertext, nonce)
	env.BlobID = blobID
	if err := sendEnvelope(ctx, c.transport, session, peer, env); err != nil {
		return nil, fmt.Errorf("send content ref: %w", err)
	}

	return &PushContentResult{BlobID: blobID, ContentHash: sealed.ContentHash}, nil
}

// PullResult is returned by Pull.
type PullResult struct {
	Blobs     []DecryptedBlob
	MaxCursor wire.Cursor
	HasMore   bool
}

// DecryptedBlob is one successfully decrypted blob returned by Pull.
type DecryptedBlob struct {
	BlobID    wire.BlobID
	Cursor    wire.Cursor
	SenderID  wire.DeviceID
	Plaintext []byte
}

// Pull requests blobs strictly after afterCursor and returns their
// decrypted payloads in cursor order. A blob that fails to decrypt is
// dropped from the result and logged, never surfaced as partial plaintext.
func (c *Client) Pull(ctx context.Context, afterCursor wire.Cursor, limit uint32) (*PullResult, error) {
	c.mu.Lock()
	session := c.session
	if c.membership == nil {
		c.mu.Unlock()
		return nil, ErrGroupNotConfigured
	}
	peer := c.membership.RelayNodeID
	c.mu.Unlock()
	if session == nil {
		return nil, ErrNotConnected
	}

	pull := wire.Pull{AfterCursor: afterCursor, Limit: limit}
	payload, err := wire.EncodePayload(pull)
	if err != nil {
		return nil, fmt.Errorf("encode pull: %w", err)
	}
	if err := sendEnvelope(ctx, c.transport, session, peer, c.buildEnvelope(wire.TypePull, payload, [24]byte{})); err != nil {
		return nil, fmt.Errorf("send pull: %w", err)
	}

	resp, err := recvEnvelope(ctx, c.transport, session, peer)
	if err != nil {
		return nil, fmt.Errorf("await pull response: %w", err)
	}
	if resp.Type != wire.TypePullResponse {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedMessage, resp.Type)
	}
	var batch wire.PullResponse
	if err := wire.DecodePayload(resp.Payload, &batch); err != nil {
		return nil, fmt.Errorf("decode pull response: %w", err)
	}

	out := &PullResult{MaxCursor: batch.MaxCursor, HasMore: batch.HasMore}
	for _, entry := range batch.Blobs {
		c.recordDevice(entry.SenderID)
		aad := c.blobAssociatedData(entry.SenderID, entry.BlobID)
		plaintext, err := crypto.OpenEnvelopeWithNonce(c.envelopeKey, entry.Nonce[:], entry.Payload, aad)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"error_type": "blob_decrypt_failed",
				"cursor":     entry.Cursor,
			}).Warn("Dropping undecryptable blob from pull batch")
			continue
		}
		applied := c.cursorTracker.Received(entry.Cursor)
		if len(applied) > 0 {
			c.mu.Lock()
			latest := c.cursorTracker.LastApplied()
			c.mu.Unlock()
			if c.membership != nil {
				_ = c.store.SaveCursor(c.membership.GroupID, latest)
			}
		}
		out.Blobs = append(out.Blobs, DecryptedBlob{
			BlobID:    entry.BlobID,
			Cursor:    entry.Cursor,
			SenderID:  entry.SenderID,
			Plaintext: plaintext,
		})
	}
	return out, nil
}

func (c *Client) blobAssociatedData(sender wire.DeviceID, blobID wire.BlobID) []byte {
	aad := make([]byte, 0, len(c.membership.GroupID)+len(sender.String())+len(blobID))
	aad = append(aad, c.membership.GroupID[:]...)
	aad = append(aad, sender.String()...)
	aad = append(aad, blobID[:]...)
	return aad
}

// buildEnvelope fills in the fields common to every outbound envelope.
func (c *Client) buildEnvelope(t wire.MessageType, payload []byte, nonce [24]byte) *wire.Envelope {
	e := &wire.Envelope{
		Version:   wire.ProtocolVersion,
		Type:      t,
		Sender:    c.DeviceID(),
		Payload:   payload,
		Nonce:     nonce,
		Timestamp: time.Now().Unix(),
	}
	if c.membership != nil {
		e.Group = c.membership.GroupID
	}
	return e
}

func randomNonce() ([24]byte, error) {
	var n [24]byte
	if _, err := cryptorand.Read(n[:]); err != nil {
		return n, fmt.Errorf("generate push nonce: %w", err)
	}
	return n, nil
}
