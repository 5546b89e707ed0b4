package crypto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeUint64ToInt64(t *testing.T) {
	got, err := SafeUint64ToInt64(3600)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), got)
}

func TestSafeUint64ToInt64RejectsOverflow(t *testing.T) {
	_, err := SafeUint64ToInt64(math.MaxUint64)
	assert.Error(t, err)
}
