package syncstate

import (
	"sort"

	"github.com/zerok-sync/sync/wire"
)

// CursorTracker holds the highest cursor applied to application state and
// the set of out-of-order arrivals above it, draining the contiguous
// prefix as gaps fill in (spec §4.2).
type CursorTracker struct {
	lastApplied wire.Cursor
	seen        map[wire.Cursor]bool
}

// NewCursorTracker creates a tracker starting from lastApplied (0 means
// "never seen").
func NewCursorTracker(lastApplied wire.Cursor) *CursorTracker {
	return &CursorTracker{lastApplied: lastApplied, seen: make(map[wire.Cursor]bool)}
}

// LastApplied returns the highest cursor applied so far.
func (c *CursorTracker) LastApplied() wire.Cursor {
	return c.lastApplied
}

// Received records the arrival of cursor c, advancing LastApplied and
// draining any contiguous run now available. It returns the sorted list of
// cursors newly applied by this call (possibly more than one, if c filled
// the last gap in a run). A cursor at or below LastApplied is a duplicate
// and is dropped, returning nil.
func (c *CursorTracker) Received(cur wire.Cursor) []wire.Cursor {
	if cur <= c.lastApplied {
		return nil
	}
	if cur != c.lastApplied+1 {
		c.seen[cur] = true
		return nil
	}

	applied := []wire.Cursor{cur}
	c.lastApplied = cur
	for {
		next := c.lastApplied + 1
		if !c.seen[next] {
			break
		}
		delete(c.seen, next)
		c.lastApplied = next
		applied = append(applied, next)
	}
	return applied
}

// Gaps returns the sorted list of cursors missing between LastApplied+1 and
// the highest cursor currently held in seen, inclusive. It returns nil if
// seen is empty.
func (c *CursorTracker) Gaps() []wire.Cursor {
	if len(c.seen) == 0 {
		return nil
	}
	var maxSeen wire.Cursor
	for cur := range c.seen {
		if cur > maxSeen {
			maxSeen = cur
		}
	}

	var gaps []wire.Cursor
	for cur := c.lastApplied + 1; cur < maxSeen; cur++ {
		if !c.seen[cur] {
			gaps = append(gaps, cur)
		}
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps
}
