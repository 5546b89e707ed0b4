package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerok-sync/sync/wire"
)

func TestCursorTrackerInOrderArrival(t *testing.T) {
	tr := NewCursorTracker(0)
	assert.Equal(t, []wire.Cursor{1}, tr.Received(1))
	assert.Equal(t, []wire.Cursor{2}, tr.Received(2))
	assert.Equal(t, wire.Cursor(2), tr.LastApplied())
}

func TestCursorTrackerDropsDuplicates(t *testing.T) {
	tr := NewCursorTracker(5)
	assert.Nil(t, tr.Received(3))
	assert.Nil(t, tr.Received(5))
	assert.Equal(t, wire.Cursor(5), tr.LastApplied())
}

func TestCursorTrackerBuffersOutOfOrderThenDrains(t *testing.T) {
	tr := NewCursorTracker(0)

	assert.Nil(t, tr.Received(3))
	assert.Nil(t, tr.Received(2))
	assert.Equal(t, wire.Cursor(0), tr.LastApplied())

	applied := tr.Received(1)
	assert.Equal(t, []wire.Cursor{1, 2, 3}, applied)
	assert.Equal(t, wire.Cursor(3), tr.LastApplied())
}

func TestCursorTrackerGaps(t *testing.T) {
	tr := NewCursorTracker(0)
	tr.Received(5)
	tr.Received(3)

	assert.Equal(t, []wire.Cursor{1, 2, 4}, tr.Gaps())
}

func TestCursorTrackerGapsEmptyWhenNothingOutOfOrder(t *testing.T) {
	tr := NewCursorTracker(0)
	tr.Received(1)
	assert.Nil(t, tr.Gaps())
}
