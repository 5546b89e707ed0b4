package crypto

import (
	"fmt"
	"math"
)

// SafeUint64ToInt64 safely converts a uint64 to int64, checking for
// overflow. Relay wire fields like a Push TTL or an invite expiry arrive as
// unsigned seconds counts from a peer that may not be honest; converting
// one straight into a time.Duration multiplication can wrap silently.
//
// CWE-190: Integer Overflow or Wraparound
func SafeUint64ToInt64(val uint64) (int64, error) {
	if val > math.MaxInt64 {
		return 0, fmt.Errorf("uint64 value exceeds int64 max: %d (max: %d)", val, math.MaxInt64)
	}
	return int64(val), nil
}
