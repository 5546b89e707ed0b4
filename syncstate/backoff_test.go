package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseDelayGrowsExponentiallyThenCaps(t *testing.T) {
	p := DefaultBackoffParams
	assert.Equal(t, 2.0, p.BaseDelay(1))
	assert.Equal(t, 4.0, p.BaseDelay(2))
	assert.Equal(t, p.Cap, p.BaseDelay(5), "2^5 == 32 exceeds the 30s cap")
	assert.Equal(t, p.Cap, p.BaseDelay(100), "exponent clamps at cap_exp so delay never exceeds cap")
}

func TestBaseDelayTreatsAttemptZeroAsOne(t *testing.T) {
	p := DefaultBackoffParams
	assert.Equal(t, p.BaseDelay(1), p.BaseDelay(0))
}

func TestAddJitterStaysWithinWindow(t *testing.T) {
	p := DefaultBackoffParams
	base := p.BaseDelay(1)

	assert.Equal(t, base, p.AddJitter(base, 0))
	assert.Equal(t, base+p.JitterMax, p.AddJitter(base, 1))
}

func TestJitterSpreadMeetsThunderingHerdBound(t *testing.T) {
	// spec §8: for 100 independent Reconnecting{1} instances drawing
	// jitter, the max-min spread of computed delays must be >= 2s.
	p := DefaultBackoffParams
	base := p.BaseDelay(1)

	samples := make([]float64, 100)
	for i := range samples {
		jitterSample := float64(i) / float64(len(samples)-1)
		samples[i] = p.AddJitter(base, jitterSample)
	}

	min, max := samples[0], samples[0]
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	assert.GreaterOrEqual(t, max-min, 2.0)
}
