package noise

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSessionClosed is returned by Encrypt/Decrypt once Close has been
// called.
var ErrSessionClosed = errors.New("session closed")

// Session is an established, hybrid-authenticated transport session (spec
// §4.3 layer 1). It frames arbitrary bytes — in practice, serialized
// wire.Envelope records — for transmission over the underlying transport
// capability. One Session is owned by exactly one connection task; it is
// not safe to share across goroutines without the session's own mutex,
// which it provides.
type Session struct {
	mu sync.Mutex

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	sendAEAD outerAEAD
	recvAEAD outerAEAD

	peerStatic []byte
	closed     bool
}

// outerAEAD is the KEM-keyed second encryption layer wrapped around the
// classical Noise cipher state's output.
type outerAEAD struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
}

func newSession(sendCS, recvCS *noise.CipherState, sendKEMKey, recvKEMKey []byte, peerStatic []byte) (*Session, error) {
	sendAEAD, err := chacha20poly1305.New(sendKEMKey)
	if err != nil {
		return nil, fmt.Errorf("build send AEAD: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(recvKEMKey)
	if err != nil {
		return nil, fmt.Errorf("build recv AEAD: %w", err)
	}

	return &Session{
		sendCS:     sendCS,
		recvCS:     recvCS,
		sendAEAD:   outerAEAD{aead: sendAEAD},
		recvAEAD:   outerAEAD{aead: recvAEAD},
		peerStatic: peerStatic,
	}, nil
}

// PeerStaticKey returns the peer's authenticated long-term public key, i.e.
// their DeviceId bytes.
func (s *Session) PeerStaticKey() []byte {
	return append([]byte(nil), s.peerStatic...)
}

// Encrypt frames a plaintext transport frame: Enc_kem(Enc_noise(frame)).
func (s *Session) Encrypt(frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	inner, err := s.sendCS.Encrypt(nil, nil, frame)
	if err != nil {
		return nil, fmt.Errorf("noise layer encrypt: %w", err)
	}

	nonce := make([]byte, s.sendAEAD.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate outer nonce: %w", err)
	}

	sealed := s.sendAEAD.aead.Seal(nil, nonce, inner, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt. It returns ErrSessionClosed after Close, and
// otherwise a plain error for a frame that is too short or fails either
// decryption layer; callers in the client runtime must treat any error
// identically to a dropped frame, never surfacing partial plaintext.
func (s *Session) Decrypt(frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	nonceLen := s.recvAEAD.aead.NonceSize()
	if len(frame) < nonceLen+s.recvAEAD.aead.Overhead() {
		return nil, fmt.Errorf("frame too short")
	}
	nonce, sealed := frame[:nonceLen], frame[nonceLen:]

	inner, err := s.recvAEAD.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("outer layer decrypt: %w", err)
	}

	plain, err := s.recvCS.Decrypt(nil, nil, inner)
	if err != nil {
		return nil, fmt.Errorf("noise layer decrypt: %w", err)
	}
	return plain, nil
}

// Close marks the session closed; Encrypt and Decrypt return
// ErrSessionClosed afterwards. It does not overwrite the key material held
// by the Noise cipher states or the outer AEADs.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
