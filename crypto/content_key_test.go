package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveContentKeyIsStableAndBlobScoped(t *testing.T) {
	contentSubKey := make([]byte, 32)
	_, err := rand.Read(contentSubKey)
	require.NoError(t, err)

	k1, err := DeriveContentKey(contentSubKey, "blob-abc")
	require.NoError(t, err)
	k2, err := DeriveContentKey(contentSubKey, "blob-abc")
	require.NoError(t, err)
	k3, err := DeriveContentKey(contentSubKey, "blob-xyz")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 32)
}
