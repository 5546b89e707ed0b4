package invite

import (
	"encoding/base64"
	"fmt"
)

// EncodeQR renders r as the base64url payload embedded in the invite
// URL scheme `<app-scheme>://sync?invite=<payload>` (spec §6.6). The
// caller owns the surrounding URL construction; this function only
// produces the payload segment.
func EncodeQR(r *Record) (string, error) {
	buf, err := Encode(r)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// DecodeQR reverses EncodeQR.
func DecodeQR(payload string) (*Record, error) {
	buf, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrInvalidInvite, err)
	}
	return Decode(buf)
}
