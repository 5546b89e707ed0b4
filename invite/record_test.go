package invite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	r := &Record{
		Version:     ProtocolVersion,
		RelayNodeID: []byte("relay-7"),
		ExpiresAt:   1700000600,
	}
	for i := range r.GroupID {
		r.GroupID[i] = byte(i)
	}
	for i := range r.GroupSecret {
		r.GroupSecret[i] = byte(i + 1)
	}
	for i := range r.CreatorDeviceID {
		r.CreatorDeviceID[i] = byte(i + 2)
	}
	return r
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleRecord()

	encoded, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	r := sampleRecord()
	r.Version = 77

	encoded, err := Encode(r)
	require.NoError(t, err)

	_, err = Decode(encoded)
	assert.ErrorIs(t, err, ErrInvalidInvite)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded, err := Encode(sampleRecord())
	require.NoError(t, err)

	corrupted := append(encoded, 0x00)
	_, err = Decode(corrupted)
	assert.ErrorIs(t, err, ErrInvalidInvite)
}

func TestIsExpired(t *testing.T) {
	r := sampleRecord()
	assert.False(t, r.IsExpired(r.ExpiresAt-1))
	assert.True(t, r.IsExpired(r.ExpiresAt))
	assert.True(t, r.IsExpired(r.ExpiresAt+1))
}

func TestQRFormRoundTrip(t *testing.T) {
	original := sampleRecord()

	payload, err := EncodeQR(original)
	require.NoError(t, err)

	decoded, err := DecodeQR(payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeQRRejectsInvalidBase64(t *testing.T) {
	_, err := DecodeQR("not valid base64url!!!")
	assert.ErrorIs(t, err, ErrInvalidInvite)
}
