package wire

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTripEveryMessageType(t *testing.T) {
	cases := []interface{}{
		Hello{LastCursor: 5},
		Welcome{MaxCursor: 10, PendingCount: 2},
		Push{BlobID: NewBlobID(), TTLSeconds: 3600},
		PushAck{BlobID: NewBlobID(), Cursor: 7},
		Pull{AfterCursor: 3, Limit: 100},
		PullResponse{
			Blobs:     []PullBatchEntry{{BlobID: NewBlobID(), Cursor: 1, Payload: []byte("x")}},
			MaxCursor: 1,
			HasMore:   false,
		},
		Presence{},
		Notify{Cursor: 9},
		Delete{BlobID: NewBlobID(), Force: true},
		RevokeDevice{Reason: "lost device"},
		DeviceRevoked{Reason: "lost device"},
		RegisterPush{Token: "apns-token"},
		UnregisterPush{},
		ContentRef{ContentSize: 100, EncryptedSize: 116, MimeType: "image/jpeg"},
		ContentAck{},
		ErrorMessage{Code: ErrorCodeDecryptFailed, Message: "bad tag"},
	}

	for _, original := range cases {
		encoded, err := EncodePayload(original)
		require.NoError(t, err)

		switch original.(type) {
		case Hello:
			var got Hello
			require.NoError(t, DecodePayload(encoded, &got))
			assert.Equal(t, original, got)
		case Push:
			var got Push
			require.NoError(t, DecodePayload(encoded, &got))
			assert.Equal(t, original, got)
		case ErrorMessage:
			var got ErrorMessage
			require.NoError(t, DecodePayload(encoded, &got))
			assert.Equal(t, original, got)
		default:
			got := reflect.New(reflect.TypeOf(original))
			require.NoError(t, DecodePayload(encoded, got.Interface()))
			assert.Equal(t, original, got.Elem().Interface())
		}
	}
}

func TestDecodePayloadRejectsTrailingBytes(t *testing.T) {
	encoded, err := EncodePayload(Hello{LastCursor: 1})
	require.NoError(t, err)

	corrupted := append(encoded, 0xAA)
	var got Hello
	err = DecodePayload(corrupted, &got)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestNewBlobIDIsUnique(t *testing.T) {
	a := NewBlobID()
	b := NewBlobID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 36)
}
