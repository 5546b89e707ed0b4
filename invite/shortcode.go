package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// shortCodeAlphabet is the legal alphabet for both halves of a short code.
const shortCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ShortCode is the two halves of a `XXXX-XXXX-XXXX-XXXX` invite code: an
// 8-character LookupKey the relay indexes on, and an 8-character
// DecryptKey the relay never observes (spec §4.2).
type ShortCode struct {
	LookupKey  string
	DecryptKey string
}

// String renders the canonical `XXXX-XXXX-XXXX-XXXX` display form.
func (s ShortCode) String() string {
	full := s.LookupKey + s.DecryptKey
	var b strings.Builder
	for i, r := range full {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseShortCode parses a `XXXX-XXXX-XXXX-XXXX` display string back into
// its lookup/decrypt halves.
func ParseShortCode(display string) (ShortCode, error) {
	full := strings.ReplaceAll(display, "-", "")
	if len(full) != 16 {
		return ShortCode{}, fmt.Errorf("%w: short code must be 16 characters, got %d", ErrInvalidInvite, len(full))
	}
	for _, r := range full {
		if !strings.ContainsRune(shortCodeAlphabet, r) {
			return ShortCode{}, fmt.Errorf("%w: illegal character %q in short code", ErrInvalidInvite, r)
		}
	}
	return ShortCode{LookupKey: full[:8], DecryptKey: full[8:]}, nil
}

// GenerateShortCode draws a fresh random 16-character short code.
func GenerateShortCode() (ShortCode, error) {
	lookup, err := randomAlphanumeric(8)
	if err != nil {
		return ShortCode{}, err
	}
	decrypt, err := randomAlphanumeric(8)
	if err != nil {
		return ShortCode{}, err
	}
	return ShortCode{LookupKey: lookup, DecryptKey: decrypt}, nil
}

func randomAlphanumeric(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate short code bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = shortCodeAlphabet[int(b)%len(shortCodeAlphabet)]
	}
	return string(out), nil
}

// deriveShortCodeKey stretches decryptKey into a 32-byte symmetric key via
// HKDF. The short code's entropy (~41 bits) bounds confidentiality to
// however quickly an attacker can enumerate decrypt_key guesses offline
// against a captured ciphertext; the relay-side rate limits on lookup_key
// (spec §4.5) are the primary defense, since the relay is the only party
// who ever sees the ciphertext in the first place.
func deriveShortCodeKey(decryptKey string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(decryptKey), nil, []byte("0k-sync-shortcode-v1"))
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := reader.Read(out); err != nil {
		return nil, fmt.Errorf("hkdf short code key: %w", err)
	}
	return out, nil
}

// EncryptForShortCode seals r's encoded bytes under a key derived from
// code.DecryptKey. The creator posts {code.LookupKey, ciphertext} to the
// relay; the relay stores and later returns the ciphertext but never
// learns DecryptKey, so it cannot read GroupSecret.
func EncryptForShortCode(r *Record, code ShortCode) ([]byte, error) {
	plaintext, err := Encode(r)
	if err != nil {
		return nil, err
	}

	key, err := deriveShortCodeKey(code.DecryptKey)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("build short code AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate short code nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, []byte(code.LookupKey))
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptShortCode reverses EncryptForShortCode using the joiner's locally
// held DecryptKey half (never transmitted to the relay).
func DecryptShortCode(sealed []byte, code ShortCode) (*Record, error) {
	key, err := deriveShortCodeKey(code.DecryptKey)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("build short code AEAD: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: short code ciphertext truncated", ErrInvalidInvite)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(code.LookupKey))
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt short code: %v", ErrInvalidInvite, err)
	}
	return Decode(plaintext)
}
