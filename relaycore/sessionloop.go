package relaycore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/noise"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wire"
)

// Server drives one or more device sessions against a Relay over a
// transport.Capability: the responder side of the handshake the client
// runtime drives as initiator, followed by the Hello/Welcome/Push/Pull/
// Delete/RevokeDevice/RegisterPush dispatch described in spec §4.5.
type Server struct {
	relay       *Relay
	transport   transport.Capability
	staticPriv  [32]byte
	relayDevice wire.DeviceID

	mu         sync.Mutex
	waiting    map[wire.DeviceID]chan wire.Notify
	contentFwd map[wire.DeviceID]chan *wire.Envelope
}

// NewServer builds a Server over relay, using t to exchange frames and
// staticPriv as the relay's own long-term Noise identity.
func NewServer(relay *Relay, t transport.Capability, staticPriv [32]byte) (*Server, error) {
	keyPair, err := crypto.FromSecretKey(staticPriv)
	if err != nil {
		return nil, fmt.Errorf("derive relay identity: %w", err)
	}
	var relayDevice wire.DeviceID
	copy(relayDevice[:], keyPair.Public[:])

	return &Server{
		relay:       relay,
		transport:   t,
		staticPriv:  staticPriv,
		relayDevice: relayDevice,
		waiting:     make(map[wire.DeviceID]chan wire.Notify),
		contentFwd:  make(map[wire.DeviceID]chan *wire.Envelope),
	}, nil
}

// ServeSession drives the responder handshake and message loop for one
// connected peer to completion. It returns when ctx is done, the peer
// disconnects, or an unrecoverable protocol error occurs; a decrypt or
// decode failure on a single frame is logged and the frame dropped rather
// than ending the session (spec §4.3/§4.5: malformed input never tears
// down a session by itself).
func (s *Server) ServeSession(ctx context.Context, peer transport.NodeID) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "ServeSession",
		"package":  "relaycore",
	})

	session, err := s.acceptHandshake(ctx, peer)
	if err != nil {
		return fmt.Errorf("responder handshake: %w", err)
	}
	defer session.Close()

	var device wire.DeviceID
	var registered bool
	defer func() {
		if registered {
			s.unregisterWaiter(device)
			s.unregisterContentTarget(device)
		}
	}()

	notifyCh := make(chan wire.Notify, 16)
	contentCh := make(chan *wire.Envelope, 16)

	for {
		env, err := recvSessionEnvelope(ctx, s.transport, session, peer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrSessionDecryptFailed) || errors.Is(err, wire.ErrInvalidMessage) {
				logger.WithFields(logrus.Fields{"error_type": "bad_frame", "error": err.Error()}).Debug("Dropping undecryptable or malformed frame")
				continue
			}
			return fmt.Errorf("receive frame: %w", err)
		}

		if !bytesEqual(env.Sender[:], session.PeerStaticKey()) {
			logger.WithFields(logrus.Fields{"error_type": "sender_mismatch"}).Warn("Dropping envelope with spoofed sender")
			continue
		}

		switch env.Type {
		case wire.TypeHello:
			var hello wire.Hello
			if err := wire.DecodePayload(env.Payload, &hello); err != nil {
				continue
			}
			device = env.Sender
			group := env.Group
			result, err := s.relay.OnHello(ctx, group, device, hello)
			if err != nil {
				s.sendError(ctx, session, peer, group, err)
				continue
			}
			if err := s.replyWelcome(ctx, session, peer, group, result); err != nil {
				return err
			}
			s.registerWaiter(device, notifyCh)
			s.registerContentTarget(device, contentCh)
			registered = true
			go s.forwardNotifies(ctx, session, peer, notifyCh)
			go s.forwardContent(ctx, session, peer, contentCh)

		case wire.TypePush:
			s.handlePush(ctx, session, peer, env)

		case wire.TypePull:
			s.handlePull(ctx, session, peer, env)

		case wire.TypeDelete:
			s.handleDelete(ctx, session, peer, env)

		case wire.TypeRevokeDevice:
			s.handleRevoke(ctx, session, peer, env)

		case wire.TypeRegisterPush:
			s.handleRegisterPush(ctx, session, peer, env)

		case wire.TypeUnregisterPush:
			_ = s.relay.OnUnregisterPush(env.Sender)

		case wire.TypeContentRef, wire.TypeContentAck:
			s.forwardContentEnvelope(ctx, session, peer, env)

		default:
			logger.WithFields(logrus.Fields{"message_type": env.Type.String()}).Debug("Ignoring unsupported message type")
		}
	}
}

func (s *Server) acceptHandshake(ctx context.Context, peer transport.NodeID) (*noise.Session, error) {
	hs, err := noise.NewXXHandshake(s.staticPriv, noise.Responder)
	if err != nil {
		return nil, fmt.Errorf("build responder handshake state: %w", err)
	}

	msg1, err := s.transport.Recv(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("receive handshake message one: %w", err)
	}
	if _, err := hs.ReadMessage(msg1); err != nil {
		return nil, fmt.Errorf("read handshake message one: %w", err)
	}

	msg2, _, err := hs.WriteMessage()
	if err != nil {
		return nil, fmt.Errorf("write handshake message two: %w", err)
	}
	if err := s.transport.Send(ctx, peer, msg2); err != nil {
		return nil, fmt.Errorf("send handshake message two: %w", err)
	}

	msg3, err := s.transport.Recv(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("receive handshake message three: %w", err)
	}
	session, err := hs.ReadMessage(msg3)
	if err != nil {
		return nil, fmt.Errorf("read handshake message three: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: responder handshake did not complete after message three", noise.ErrHandshakeFailed)
	}
	return session, nil
}

func (s *Server) registerWaiter(device wire.DeviceID, ch chan wire.Notify) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting[device] = ch
}

func (s *Server) unregisterWaiter(device wire.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiting, device)
}

func (s *Server) registerContentTarget(device wire.DeviceID, ch chan *wire.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentFwd[device] = ch
}

func (s *Server) unregisterContentTarget(device wire.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contentFwd, device)
}

// forwardNotifies relays Notify frames queued for this session's device
// (from pushes accepted on other sessions) for as long as the session
// stays open.
func (s *Server) forwardNotifies(ctx context.Context, session *noise.Session, peer transport.NodeID, ch chan wire.Notify) {
	for {
		select {
		case <-ctx.Done():
			return
		case notify, ok := <-ch:
			if !ok {
				return
			}
			payload, err := wire.EncodePayload(notify)
			if err != nil {
				continue
			}
			out := &wire.Envelope{
				Version: wire.ProtocolVersion,
				Type:    wire.TypeNotify,
				Sender:  s.relayDevice,
				Payload: payload,
			}
			_ = sendSessionEnvelope(ctx, s.transport, session, peer, out)
		}
	}
}

// forwardContent relays ContentRef/ContentAck envelopes addressed to this
// session's device (from sessions forwarding into contentFwd) for as long
// as the session stays open, mirroring forwardNotifies.
func (s *Server) forwardContent(ctx context.Context, session *noise.Session, peer transport.NodeID, ch chan *wire.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			_ = sendSessionEnvelope(ctx, s.transport, session, peer, env)
		}
	}
}

// forwardContentEnvelope relays a ContentRef or ContentAck verbatim to this
// group's other online devices. The relay never inspects the envelope's
// encrypted payload; it only needs the sender's group membership and
// revocation status to decide who qualifies as a forwarding target (spec
// §4.4: the content side channel is a live relay-mediated forward, not a
// persisted, pull-able blob like Push).
func (s *Server) forwardContentEnvelope(ctx context.Context, session *noise.Session, peer transport.NodeID, env *wire.Envelope) {
	online, err := s.relay.OnContentRef(ctx, env.Group, env.Sender)
	if err != nil {
		s.sendError(ctx, session, peer, env.Group, err)
		return
	}

	s.mu.Lock()
	for _, target := range online {
		if ch, ok := s.contentFwd[target]; ok {
			select {
			case ch <- env:
			default:
			}
		}
	}
	s.mu.Unlock()
}

func (s *Server) handlePush(ctx context.Context, session *noise.Session, peer transport.NodeID, env *wire.Envelope) {
	sourceKey := env.Sender.String()
	result, err := s.relay.OnPush(ctx, env.Group, env.Sender, sourceKey, env.BlobID, env.Nonce, env.Payload, env.TTLSeconds)
	if err != nil {
		s.sendError(ctx, session, peer, env.Group, err)
		return
	}

	ack := wire.PushAck{BlobID: env.BlobID, Cursor: result.Cursor}
	payload, err := wire.EncodePayload(ack)
	if err != nil {
		return
	}
	out := &wire.Envelope{
		Version: wire.ProtocolVersion,
		Type:    wire.TypePushAck,
		Sender:  s.relayDevice,
		Group:   env.Group,
		BlobID:  env.BlobID,
		Payload: payload,
	}
	_ = sendSessionEnvelope(ctx, s.transport, session, peer, out)

	notify := wire.Notify{Cursor: result.Cursor, Sender: env.Sender}
	s.mu.Lock()
	for _, target := range result.NotifyOnline {
		if ch, ok := s.waiting[target]; ok {
			select {
			case ch <- notify:
			default:
			}
		}
	}
	s.mu.Unlock()
}

func (s *Server) handlePull(ctx context.Context, session *noise.Session, peer transport.NodeID, env *wire.Envelope) {
	var pull wire.Pull
	if err := wire.DecodePayload(env.Payload, &pull); err != nil {
		return
	}
	result, err := s.relay.OnPull(ctx, env.Group, env.Sender, pull.AfterCursor, pull.Limit)
	if err != nil {
		s.sendError(ctx, session, peer, env.Group, err)
		return
	}

	entries := make([]wire.PullBatchEntry, 0, len(result.Blobs))
	for _, blob := range result.Blobs {
		entries = append(entries, wire.PullBatchEntry{
			BlobID:   blob.BlobID,
			Cursor:   blob.Cursor,
			SenderID: blob.SenderID,
			Nonce:    blob.Nonce,
			Payload:  blob.Payload,
		})
	}
	response := wire.PullResponse{Blobs: entries, MaxCursor: result.MaxCursor, HasMore: result.HasMore}
	payload, err := wire.EncodePayload(response)
	if err != nil {
		return
	}
	out := &wire.Envelope{
		Version: wire.ProtocolVersion,
		Type:    wire.TypePullResponse,
		Sender:  s.relayDevice,
		Group:   env.Group,
		Payload: payload,
	}
	_ = sendSessionEnvelope(ctx, s.transport, session, peer, out)
}

func (s *Server) handleDelete(ctx context.Context, session *noise.Session, peer transport.NodeID, env *wire.Envelope) {
	var del wire.Delete
	if err := wire.DecodePayload(env.Payload, &del); err != nil {
		return
	}
	if err := s.relay.OnDelete(ctx, env.Sender, del.BlobID, del.Force); err != nil {
		s.sendError(ctx, session, peer, env.Group, err)
	}
}

func (s *Server) handleRevoke(ctx context.Context, session *noise.Session, peer transport.NodeID, env *wire.Envelope) {
	var revoke wire.RevokeDevice
	if err := wire.DecodePayload(env.Payload, &revoke); err != nil {
		return
	}
	if err := s.relay.OnRevokeDevice(ctx, env.Group, revoke.Device, revoke.Reason); err != nil {
		s.sendError(ctx, session, peer, env.Group, err)
		return
	}

	revoked := wire.DeviceRevoked{Device: revoke.Device, Reason: revoke.Reason}
	payload, err := wire.EncodePayload(revoked)
	if err != nil {
		return
	}
	out := &wire.Envelope{
		Version: wire.ProtocolVersion,
		Type:    wire.TypeDeviceRevoked,
		Sender:  s.relayDevice,
		Group:   env.Group,
		Payload: payload,
	}
	_ = sendSessionEnvelope(ctx, s.transport, session, peer, out)
}

func (s *Server) handleRegisterPush(ctx context.Context, session *noise.Session, peer transport.NodeID, env *wire.Envelope) {
	var reg wire.RegisterPush
	if err := wire.DecodePayload(env.Payload, &reg); err != nil {
		return
	}
	if err := s.relay.OnRegisterPush(env.Sender, reg.Token); err != nil {
		s.sendError(ctx, session, peer, env.Group, err)
	}
}

func (s *Server) sendError(ctx context.Context, session *noise.Session, peer transport.NodeID, group wire.GroupID, cause error) {
	payload, err := wire.EncodePayload(wire.ErrorMessage{Message: cause.Error()})
	if err != nil {
		return
	}
	out := &wire.Envelope{
		Version: wire.ProtocolVersion,
		Type:    wire.TypeError,
		Sender:  s.relayDevice,
		Group:   group,
		Payload: payload,
	}
	_ = sendSessionEnvelope(ctx, s.transport, session, peer, out)
}

func (s *Server) replyWelcome(ctx context.Context, session *noise.Session, peer transport.NodeID, group wire.GroupID, result *HelloResult) error {
	payload, err := wire.EncodePayload(result.Welcome)
	if err != nil {
		return fmt.Errorf("encode welcome: %w", err)
	}
	out := &wire.Envelope{
		Version: wire.ProtocolVersion,
		Type:    wire.TypeWelcome,
		Sender:  s.relayDevice,
		Group:   group,
		Payload: payload,
	}
	if err := sendSessionEnvelope(ctx, s.transport, session, peer, out); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}

	for _, notify := range result.Notifies {
		notifyPayload, err := wire.EncodePayload(notify)
		if err != nil {
			continue
		}
		backlogEnv := &wire.Envelope{
			Version: wire.ProtocolVersion,
			Type:    wire.TypeNotify,
			Sender:  s.relayDevice,
			Group:   group,
			Payload: notifyPayload,
		}
		if err := sendSessionEnvelope(ctx, s.transport, session, peer, backlogEnv); err != nil {
			return fmt.Errorf("send backlog notify: %w", err)
		}
	}
	return nil
}

// sendSessionEnvelope and recvSessionEnvelope mirror the client runtime's
// own unexported session helpers. recvSessionEnvelope reports a frame that
// fails to decrypt as ErrSessionDecryptFailed and one that fails to decode
// as wire.ErrInvalidMessage; ServeSession logs and drops either without
// replying.
func sendSessionEnvelope(ctx context.Context, t transport.Capability, session *noise.Session, peer transport.NodeID, e *wire.Envelope) error {
	raw, err := wire.EncodeEnvelope(e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	frame, err := session.Encrypt(raw)
	if err != nil {
		return fmt.Errorf("encrypt transport frame: %w", err)
	}
	return t.Send(ctx, peer, frame)
}

// ErrSessionDecryptFailed indicates an inbound frame failed to decrypt
// under the session's AEAD.
var ErrSessionDecryptFailed = errors.New("session decrypt failed")

func recvSessionEnvelope(ctx context.Context, t transport.Capability, session *noise.Session, peer transport.NodeID) (*wire.Envelope, error) {
	frame, err := t.Recv(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("receive transport frame: %w", err)
	}
	raw, err := session.Decrypt(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionDecryptFailed, err)
	}
	return wire.DecodeEnvelope(raw)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
