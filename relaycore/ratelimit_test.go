package relaycore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimiterAllowsUpToLimit(t *testing.T) {
	l := newWindowLimiter(time.Minute, 3)
	now := time.Now()

	assert.True(t, l.Allow("dev-1", now))
	assert.True(t, l.Allow("dev-1", now))
	assert.True(t, l.Allow("dev-1", now))
	assert.False(t, l.Allow("dev-1", now), "fourth event within window must be rejected")
}

func TestWindowLimiterResetsAfterWindowElapses(t *testing.T) {
	l := newWindowLimiter(time.Minute, 1)
	now := time.Now()

	assert.True(t, l.Allow("dev-1", now))
	assert.False(t, l.Allow("dev-1", now.Add(30*time.Second)))
	assert.True(t, l.Allow("dev-1", now.Add(61*time.Second)))
}

func TestWindowLimiterTracksKeysIndependently(t *testing.T) {
	l := newWindowLimiter(time.Minute, 1)
	now := time.Now()

	assert.True(t, l.Allow("dev-1", now))
	assert.True(t, l.Allow("dev-2", now))
}

func TestRateLimiterDefaultsMatchSpec(t *testing.T) {
	r := NewRateLimiter()
	now := time.Now()

	for i := 0; i < 100; i++ {
		assert.True(t, r.AllowPush("dev-1", now))
	}
	assert.False(t, r.AllowPush("dev-1", now))

	for i := 0; i < 5; i++ {
		assert.True(t, r.AllowInvitePost("src-1", now))
	}
	assert.False(t, r.AllowInvitePost("src-1", now))
}
