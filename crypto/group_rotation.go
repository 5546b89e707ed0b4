package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RotatedGroupKey is the result of a user-initiated group-key rotation
// (spec §4.1 Open Question: rotation is member-triggered, not automatic).
// A new raw secret and salt are generated; every device that still holds
// the group must learn them out of band (a fresh invite re-sent inside the
// old, still-valid group envelope, per the supplemented rotation flow).
type RotatedGroupKey struct {
	RawSecret []byte
	Salt      []byte
	Generation uint32
}

// RotateGroupSecret produces a brand-new group secret and salt, bumping the
// rotation generation counter. It does not touch any already-sealed
// envelope, and nothing in this repository calls it: distributing the new
// secret and re-keying sessions with a fresh StretchGroupSecret/DeriveSubKey
// pass is left to the caller.
func RotateGroupSecret(previousGeneration uint32) (*RotatedGroupKey, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "RotateGroupSecret",
		"package":  "crypto",
	})
	logger.Info("Function entry: rotating group secret")

	rawSecret := make([]byte, 32)
	if _, err := rand.Read(rawSecret); err != nil {
		return nil, fmt.Errorf("generate rotated group secret: %w", err)
	}
	salt := make([]byte, GroupKeySaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate rotated group salt: %w", err)
	}

	return &RotatedGroupKey{
		RawSecret:  rawSecret,
		Salt:       salt,
		Generation: previousGeneration + 1,
	}, nil
}
