package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// DeviceClass selects the Argon2id cost parameters used to stretch a group
// secret, so that a phone joining a group doesn't pay desktop-grade memory
// cost and a desktop doesn't settle for phone-grade weak stretching (spec
// §4.2).
type DeviceClass uint8

const (
	// DeviceClassMobile covers phones and tablets.
	DeviceClassMobile DeviceClass = iota
	// DeviceClassDesktop covers laptops and workstations.
	DeviceClassDesktop
	// DeviceClassServer covers headless relays and CI runners acting as a
	// device (e.g. a backup-only sync participant).
	DeviceClassServer
)

// argon2Params holds one row of the device-class cost table.
type argon2Params struct {
	memoryKiB uint32
	time      uint32
	threads   uint8
}

var argon2Table = map[DeviceClass]argon2Params{
	DeviceClassMobile:  {memoryKiB: 64 * 1024, time: 2, threads: 4},
	DeviceClassDesktop: {memoryKiB: 256 * 1024, time: 3, threads: 4},
	DeviceClassServer:  {memoryKiB: 512 * 1024, time: 4, threads: 8},
}

// GroupKeySaltSize is the width of the random salt stored alongside a
// stretched group key so every device reproduces the same result.
const GroupKeySaltSize = 16

// ErrUnknownDeviceClass is returned for a DeviceClass outside argon2Table.
var ErrUnknownDeviceClass = errors.New("unknown device class")

// StretchGroupSecret runs Argon2id over the raw group secret shared out of
// band (spec §4.1: invite, QR, or short code) using the cost parameters for
// class. salt must be the same 16 bytes across every device in the group;
// it is generated once by whichever device creates the group and
// distributed inside the invite.
func StretchGroupSecret(rawSecret, salt []byte, class DeviceClass) ([]byte, error) {
	logger := NewLogger("StretchGroupSecret").WithField("class", class)
	logger.WithFields(SecureFieldHash(salt, "salt")).Entry("stretching group secret")

	if len(salt) != GroupKeySaltSize {
		return nil, fmt.Errorf("group key salt must be %d bytes, got %d", GroupKeySaltSize, len(salt))
	}
	params, ok := argon2Table[class]
	if !ok {
		return nil, ErrUnknownDeviceClass
	}

	start := defaultTimeProvider.Now()
	key := argon2.IDKey(rawSecret, salt, params.time, params.memoryKiB, params.threads, 32)
	logger.WithField("elapsed", defaultTimeProvider.Since(start)).Debug("argon2id stretch complete")

	return key, nil
}

// DeriveSubKey expands a stretched group key into a purpose-scoped 32-byte
// key using HKDF-SHA256, so the envelope AEAD key, the content key root, and
// any future derived secret are cryptographically independent even though
// they all trace back to the same group secret.
func DeriveSubKey(groupKey []byte, purpose string) ([]byte, error) {
	reader := hkdf.New(sha256.New, groupKey, nil, []byte("0k-sync-group-subkey-v1:"+purpose))
	out := make([]byte, 32)
	if _, err := reader.Read(out); err != nil {
		return nil, fmt.Errorf("hkdf subkey derivation: %w", err)
	}
	return out, nil
}
