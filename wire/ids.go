package wire

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewBlobID generates a fresh client-chosen blob identifier with UUIDv4
// semantics (spec §3).
func NewBlobID() BlobID {
	var id BlobID
	copy(id[:], uuid.New()[:])
	return id
}

// String renders a BlobID as a standard UUID string.
func (b BlobID) String() string {
	return uuid.UUID(b).String()
}

// String renders a DeviceID as URL-safe base64, its canonical display form
// (spec §3).
func (d DeviceID) String() string {
	return base64.URLEncoding.EncodeToString(d[:])
}
