package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// DeriveContentKey derives a per-blob content key from the group's content
// sub-key and the blob's content ID, so that every large-content blob in
// the content-addressed store is encrypted under an independent key (spec
// §4.4: compromising one blob's key never exposes another, and the content
// key itself never needs to be transmitted — every device with the group
// secret can recompute it from contentID alone).
func DeriveContentKey(contentSubKey []byte, contentID string) ([]byte, error) {
	reader := hkdf.New(sha256.New, contentSubKey, nil, []byte("0k-sync-content-key-v1:"+contentID))
	out := make([]byte, 32)
	if _, err := reader.Read(out); err != nil {
		return nil, fmt.Errorf("hkdf content key derivation: %w", err)
	}
	return out, nil
}
