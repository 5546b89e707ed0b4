package relaycore

import (
	"sync"
	"time"
)

// windowLimiter enforces a fixed count of events per key within a rolling
// window, implemented as a sliding log of timestamps. It is deliberately
// simple rather than a token bucket: the relay's limits are expressed in
// the spec as "N per minute," which a sliding log enforces exactly.
type windowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	events map[string][]time.Time
}

func newWindowLimiter(window time.Duration, limit int) *windowLimiter {
	return &windowLimiter{
		window: window,
		limit:  limit,
		events: make(map[string][]time.Time),
	}
}

// Allow records an event for key at now and reports whether it falls within
// the limit. Rejected events are not recorded, so a caller retrying after
// backing off is not further penalized.
func (l *windowLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	events := l.events[key]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.events[key] = kept
		return false
	}

	l.events[key] = append(kept, now)
	return true
}

// RateLimiter bundles every per-resource limiter the relay enforces (spec
// §4.5 rate-limit table).
type RateLimiter struct {
	pushesPerDevice  *windowLimiter
	invitePosts      *windowLimiter
	inviteGetHits    *windowLimiter
	inviteGetMisses  *windowLimiter
}

// NewRateLimiter constructs a RateLimiter with the spec's default limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		pushesPerDevice: newWindowLimiter(time.Minute, 100),
		invitePosts:     newWindowLimiter(time.Minute, 5),
		inviteGetHits:   newWindowLimiter(time.Minute, 10),
		inviteGetMisses: newWindowLimiter(time.Minute, 3),
	}
}

// AllowPush reports whether device may submit another Push right now.
func (r *RateLimiter) AllowPush(device string, now time.Time) bool {
	return r.pushesPerDevice.Allow(device, now)
}

// AllowInvitePost reports whether source may create another short-code
// invite right now.
func (r *RateLimiter) AllowInvitePost(source string, now time.Time) bool {
	return r.invitePosts.Allow(source, now)
}

// AllowInviteGetHit reports whether source may make another successful
// short-code fetch right now.
func (r *RateLimiter) AllowInviteGetHit(source string, now time.Time) bool {
	return r.inviteGetHits.Allow(source, now)
}

// AllowInviteGetMiss reports whether source may make another failed
// short-code lookup right now. Misses are capped at a fixed count per
// one-minute window; there is no escalating backoff beyond that window.
func (r *RateLimiter) AllowInviteGetMiss(source string, now time.Time) bool {
	return r.inviteGetMisses.Allow(source, now)
}
