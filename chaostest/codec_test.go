package chaostest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/wire"
)

func draw32(rt *rapid.T, label string) [32]byte {
	var out [32]byte
	bs := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, label)
	copy(out[:], bs)
	return out
}

func draw24(rt *rapid.T, label string) [24]byte {
	var out [24]byte
	bs := rapid.SliceOfN(rapid.Byte(), 24, 24).Draw(rt, label)
	copy(out[:], bs)
	return out
}

func draw16(rt *rapid.T, label string) [16]byte {
	var out [16]byte
	bs := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(rt, label)
	copy(out[:], bs)
	return out
}

// TestEnvelopeCodecRoundTrip checks decode(encode(e)) == e for arbitrary
// envelope field values (spec §8: "for all envelopes e, decode(encode(e))
// = e").
func TestEnvelopeCodecRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := &wire.Envelope{
			Version:    wire.ProtocolVersion,
			Type:       wire.MessageType(rapid.IntRange(0, 255).Draw(rt, "type")),
			Sender:     wire.DeviceID(draw32(rt, "sender")),
			Group:      wire.GroupID(draw32(rt, "group")),
			Cursor:     wire.Cursor(rapid.Uint64().Draw(rt, "cursor")),
			Timestamp:  rapid.Int64().Draw(rt, "timestamp"),
			Nonce:      draw24(rt, "nonce"),
			Payload:    rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(rt, "payload"),
			BlobID:     wire.BlobID(draw16(rt, "blob_id")),
			TTLSeconds: rapid.Uint64().Draw(rt, "ttl"),
		}

		encoded, err := wire.EncodeEnvelope(e)
		require.NoError(t, err)
		decoded, err := wire.DecodeEnvelope(encoded)
		require.NoError(t, err)
		require.Equal(t, e, decoded)
	})
}

// TestAEADRoundTrip checks decrypt(encrypt(p, k, random_nonce), k) == p for
// arbitrary plaintext, key, and associated data (spec §8).
func TestAEADRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "key")
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 1024).Draw(rt, "plaintext")
		aad := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(rt, "aad")

		sealed, err := crypto.SealEnvelope(key, plaintext, aad)
		require.NoError(t, err)
		opened, err := crypto.OpenEnvelope(key, sealed, aad)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	})
}

// TestContentKeyUniqueness checks that distinct blob ids derive distinct
// content keys from the same content sub-key (spec §8: "for all
// GroupSecrets and all distinct BlobIds b1 != b2, content_key(b1) !=
// content_key(b2) with overwhelming probability").
func TestContentKeyUniqueness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		subKey := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "sub_key")
		id1 := draw16(rt, "id1")
		id2 := draw16(rt, "id2")
		rapid.Assume(id1 != id2)

		k1, err := crypto.DeriveContentKey(subKey, fmt.Sprintf("%x", id1[:]))
		require.NoError(t, err)
		k2, err := crypto.DeriveContentKey(subKey, fmt.Sprintf("%x", id2[:]))
		require.NoError(t, err)
		require.NotEqual(t, k1, k2)
	})
}
