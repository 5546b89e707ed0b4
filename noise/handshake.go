package noise

import (
	"crypto/rand"
	"errors"
	"fmt"
	"hash"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/hkdf"

	"github.com/zerok-sync/sync/crypto"
)

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates the handshake already finished.
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrHandshakeFailed is returned for any corrupt, truncated, or
	// out-of-order handshake frame (spec §4.3: no partial state persists
	// across a failed handshake).
	ErrHandshakeFailed = errors.New("handshake failed")
)

// HandshakeRole distinguishes the two sides of the XX exchange.
type HandshakeRole uint8

const (
	// Initiator sends the first message.
	Initiator HandshakeRole = iota
	// Responder replies to the first message.
	Responder
)

// XXHandshake drives a Noise_XX_25519_ChaChaPoly_BLAKE2s handshake and
// piggybacks an ML-KEM-768 encapsulation on top of it, so the resulting
// session key is hybrid classical + post-quantum (spec §4.3).
//
// Message flow (standard Noise XX, payload use noted):
//
//	-> e                              (initiator)
//	<- e, ee, s, es  [+ KEM pubkey]    (responder)
//	-> s, se         [+ KEM ciphertext] (initiator, completes the classical handshake)
//	<- (responder reads msg 3, decapsulates, completes)
type XXHandshake struct {
	role  HandshakeRole
	state *noise.HandshakeState

	kemKeyPair        *crypto.KEMKeyPair // generated by the responder only
	pendingCiphertext []byte             // owed to the responder in message three
	kemSharedSecret   []byte

	complete bool
}

// NewXXHandshake creates a handshake for the given role using our device's
// long-term X25519 key as the Noise static key.
func NewXXHandshake(staticPriv [32]byte, role HandshakeRole) (*XXHandshake, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "NewXXHandshake",
		"package":  "noise",
		"role":     role,
	})
	logger.Debug("Function entry: building Noise XX handshake state")

	keyPair, err := crypto.FromSecretKey(staticPriv)
	if err != nil {
		return nil, fmt.Errorf("derive static keypair: %w", err)
	}

	staticKey := noise.DHKey{
		Private: append([]byte(nil), keyPair.Private[:]...),
		Public:  append([]byte(nil), keyPair.Public[:]...),
	}

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)
	config := noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("create XX handshake state: %w", err)
	}

	return &XXHandshake{role: role, state: state}, nil
}

// WriteMessage produces the next outbound handshake frame. session is
// non-nil once the handshake completes.
func (h *XXHandshake) WriteMessage() (frame []byte, session *Session, err error) {
	if h.complete {
		return nil, nil, ErrHandshakeComplete
	}

	var payload []byte
	switch {
	case h.role == Responder && h.kemKeyPair == nil:
		h.kemKeyPair, err = crypto.GenerateKEMKeyPair()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: generate responder KEM keypair: %v", ErrHandshakeFailed, err)
		}
		payload = h.kemKeyPair.MarshalPublic()
	case h.role == Initiator && h.pendingCiphertext != nil:
		payload = h.pendingCiphertext
	}

	msg, cs1, cs2, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if cs1 != nil && cs2 != nil {
		sess, serr := h.finalize(cs1, cs2)
		if serr != nil {
			return nil, nil, serr
		}
		return msg, sess, nil
	}
	return msg, nil, nil
}

// ReadMessage consumes an inbound handshake frame. session is non-nil once
// the handshake completes.
func (h *XXHandshake) ReadMessage(frame []byte) (session *Session, err error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}

	payload, cs1, cs2, err := h.state.ReadMessage(nil, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	switch {
	case h.role == Initiator && len(payload) > 0 && h.kemSharedSecret == nil:
		// Message two: payload is the responder's KEM public key.
		peerKEMPub, uerr := crypto.UnmarshalKEMPublicKey(payload)
		if uerr != nil {
			return nil, fmt.Errorf("%w: unmarshal peer KEM public key: %v", ErrHandshakeFailed, uerr)
		}
		ciphertext, sharedSecret, eerr := crypto.Encapsulate(peerKEMPub)
		if eerr != nil {
			return nil, fmt.Errorf("%w: encapsulate: %v", ErrHandshakeFailed, eerr)
		}
		h.kemSharedSecret = sharedSecret
		h.pendingCiphertext = ciphertext
	case h.role == Responder && len(payload) > 0:
		// Message three: payload is the KEM ciphertext encapsulated
		// against our public key from message two.
		sharedSecret, derr := h.kemKeyPair.Decapsulate(payload)
		if derr != nil {
			return nil, fmt.Errorf("%w: decapsulate: %v", ErrHandshakeFailed, derr)
		}
		h.kemSharedSecret = sharedSecret
	}

	if cs1 != nil && cs2 != nil {
		return h.finalize(cs1, cs2)
	}
	return nil, nil
}

// finalize wraps the classical Noise cipher states in a second, independent
// AEAD layer keyed from the ML-KEM-768 shared secret. Every transport frame
// is therefore Enc_kem(Enc_noise(frame)): breaking one primitive alone
// never exposes plaintext, which is the point of going hybrid at all.
func (h *XXHandshake) finalize(cs1, cs2 *noise.CipherState) (*Session, error) {
	if h.kemSharedSecret == nil {
		return nil, fmt.Errorf("%w: hybrid upgrade incomplete at handshake finish", ErrHandshakeFailed)
	}

	transcript := h.state.ChannelBinding()

	var sendCS, recvCS *noise.CipherState
	var sendLabel, recvLabel string
	if h.role == Initiator {
		sendCS, recvCS = cs1, cs2
		sendLabel, recvLabel = "initiator-send", "initiator-recv"
	} else {
		sendCS, recvCS = cs2, cs1
		sendLabel, recvLabel = "responder-send", "responder-recv"
	}

	sendKEMKey, err := deriveKEMKey(transcript, h.kemSharedSecret, sendLabel)
	if err != nil {
		return nil, err
	}
	recvKEMKey, err := deriveKEMKey(transcript, h.kemSharedSecret, recvLabel)
	if err != nil {
		return nil, err
	}

	peerStatic := append([]byte(nil), h.state.PeerStatic()...)
	h.complete = true
	crypto.ZeroBytes(h.kemSharedSecret)

	return newSession(sendCS, recvCS, sendKEMKey, recvKEMKey, peerStatic)
}

func deriveKEMKey(transcript, kemSecret []byte, label string) ([]byte, error) {
	newHash := func() hash.Hash {
		h, _ := blake2s.New256(nil)
		return h
	}
	reader := hkdf.New(newHash, kemSecret, transcript, []byte("0k-sync-hybrid-handshake-v1:"+label))
	out := make([]byte, 32)
	if _, err := reader.Read(out); err != nil {
		return nil, fmt.Errorf("hkdf session key derivation: %w", err)
	}
	return out, nil
}

// IsComplete reports whether the handshake has finished.
func (h *XXHandshake) IsComplete() bool {
	return h.complete
}
