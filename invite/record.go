package invite

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/wire"
)

// ErrInvalidInvite is returned for a malformed, wrong-version, or
// trailing-byte invite record.
var ErrInvalidInvite = errors.New("invalid invite")

// ProtocolVersion is the invite record's wire format version.
const ProtocolVersion uint8 = 1

// Record is the full invite payload: everything a joining device needs to
// derive its group membership (spec §4.2).
type Record struct {
	Version         uint8
	RelayNodeID     []byte // empty in peer-to-peer-only mode
	GroupID         wire.GroupID
	GroupSecret     [32]byte
	Salt            [crypto.GroupKeySaltSize]byte
	CreatorDeviceID wire.DeviceID
	ExpiresAt       int64 // unix seconds
}

type wireRecord struct {
	Version         uint8  `msgpack:"v"`
	RelayNodeID     []byte `msgpack:"relay"`
	GroupID         []byte `msgpack:"group"`
	GroupSecret     []byte `msgpack:"secret"`
	Salt            []byte `msgpack:"salt"`
	CreatorDeviceID []byte `msgpack:"creator"`
	ExpiresAt       int64  `msgpack:"expires"`
}

// Encode serializes r to its compact binary form.
func Encode(r *Record) ([]byte, error) {
	w := wireRecord{
		Version:         r.Version,
		RelayNodeID:     r.RelayNodeID,
		GroupID:         r.GroupID[:],
		GroupSecret:     r.GroupSecret[:],
		Salt:            r.Salt[:],
		CreatorDeviceID: r.CreatorDeviceID[:],
		ExpiresAt:       r.ExpiresAt,
	}
	buf, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode invite: %w", err)
	}
	return buf, nil
}

// Decode parses an invite record, rejecting unknown versions, wrong-size
// fixed fields, and trailing bytes.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)
	decoder := msgpack.NewDecoder(reader)

	var w wireRecord
	if err := decoder.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	if reader.Len() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidInvite, reader.Len())
	}
	if w.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrInvalidInvite, w.Version)
	}
	if len(w.GroupSecret) != 32 {
		return nil, fmt.Errorf("%w: group secret wrong size %d", ErrInvalidInvite, len(w.GroupSecret))
	}
	if len(w.GroupID) != len(wire.GroupID{}) {
		return nil, fmt.Errorf("%w: group id wrong size %d", ErrInvalidInvite, len(w.GroupID))
	}
	if len(w.CreatorDeviceID) != len(wire.DeviceID{}) {
		return nil, fmt.Errorf("%w: creator device id wrong size %d", ErrInvalidInvite, len(w.CreatorDeviceID))
	}
	if len(w.Salt) != crypto.GroupKeySaltSize {
		return nil, fmt.Errorf("%w: group key salt wrong size %d", ErrInvalidInvite, len(w.Salt))
	}

	var r Record
	r.Version = w.Version
	r.RelayNodeID = w.RelayNodeID
	copy(r.GroupID[:], w.GroupID)
	copy(r.GroupSecret[:], w.GroupSecret)
	copy(r.Salt[:], w.Salt)
	copy(r.CreatorDeviceID[:], w.CreatorDeviceID)
	r.ExpiresAt = w.ExpiresAt
	return &r, nil
}

// IsExpired reports whether the invite's expiry has passed as of now (unix
// seconds).
func (r *Record) IsExpired(now int64) bool {
	return now >= r.ExpiresAt
}
