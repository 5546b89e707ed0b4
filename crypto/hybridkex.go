package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/sirupsen/logrus"
)

// KEMKeyPair is an ML-KEM-768 key pair used for the post-quantum half of
// the transport handshake's hybrid key exchange (spec §4.3).
type KEMKeyPair struct {
	Public  *mlkem768.PublicKey
	Private *mlkem768.PrivateKey
}

// GenerateKEMKeyPair creates a fresh ML-KEM-768 key pair.
func GenerateKEMKeyPair() (*KEMKeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateKEMKeyPair",
		"package":  "crypto",
	})
	logger.Debug("Function entry: generating ML-KEM-768 keypair")

	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error_type": "kem_keygen_failed",
			"error":      err.Error(),
		}).Error("Failed to generate ML-KEM-768 key pair")
		return nil, fmt.Errorf("mlkem768 keygen: %w", err)
	}

	return &KEMKeyPair{Public: pub, Private: priv}, nil
}

// MarshalPublic returns the wire encoding of the KEM public key.
func (k *KEMKeyPair) MarshalPublic() []byte {
	buf := make([]byte, mlkem768.PublicKeySize)
	k.Public.Pack(buf)
	return buf
}

// UnmarshalKEMPublicKey decodes a peer's ML-KEM-768 public key.
func UnmarshalKEMPublicKey(raw []byte) (*mlkem768.PublicKey, error) {
	if len(raw) != mlkem768.PublicKeySize {
		return nil, fmt.Errorf("invalid ML-KEM-768 public key size: got %d, want %d", len(raw), mlkem768.PublicKeySize)
	}
	pk := new(mlkem768.PublicKey)
	if err := pk.Unpack(raw); err != nil {
		return nil, fmt.Errorf("unpack mlkem768 public key: %w", err)
	}
	return pk, nil
}

// Encapsulate generates a fresh shared secret and its ciphertext against a
// peer's ML-KEM-768 public key. Used by the handshake initiator once it has
// received the responder's KEM public key.
func Encapsulate(peerPublic *mlkem768.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	ciphertext = make([]byte, mlkem768.CiphertextSize)
	sharedSecret = make([]byte, mlkem768.SharedKeySize)
	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("kem encapsulation seed: %w", err)
	}
	peerPublic.EncapsulateTo(ciphertext, sharedSecret, seed)
	return ciphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret from a peer-supplied ciphertext
// using our own ML-KEM-768 private key.
func (k *KEMKeyPair) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != mlkem768.CiphertextSize {
		return nil, fmt.Errorf("invalid ML-KEM-768 ciphertext size: got %d, want %d", len(ciphertext), mlkem768.CiphertextSize)
	}
	sharedSecret := make([]byte, mlkem768.SharedKeySize)
	k.Private.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}
