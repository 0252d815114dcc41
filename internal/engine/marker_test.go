package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkerQueueDrainOrder(t *testing.T) {
	q := NewMarkerQueue()
	q.Push(Marker{ID: 3, SlotIndex: 0, StreamID: 1, TargetStep: 30})
	q.Push(Marker{ID: 1, SlotIndex: 0, StreamID: 1, TargetStep: 10})
	q.Push(Marker{ID: 2, SlotIndex: 1, StreamID: 1, TargetStep: 20})

	assert.Equal(t, 3, q.Len())
	assert.Empty(t, q.DrainUpTo(5))

	drained := q.DrainUpTo(20)
	assert.Len(t, drained, 2)
	assert.Equal(t, int64(1), drained[0].ID)
	assert.Equal(t, int64(2), drained[1].ID)
	assert.Equal(t, 1, q.Len())

	drained = q.DrainUpTo(100)
	assert.Len(t, drained, 1)
	assert.Equal(t, int64(3), drained[0].ID)
	assert.Equal(t, 0, q.Len())
}

func TestMarkerQueueRemoveForStream(t *testing.T) {
	q := NewMarkerQueue()
	q.Push(Marker{ID: 1, SlotIndex: 0, StreamID: 1, TargetStep: 10})
	q.Push(Marker{ID: 2, SlotIndex: 0, StreamID: 2, TargetStep: 10})
	q.Push(Marker{ID: 3, SlotIndex: 1, StreamID: 1, TargetStep: 10})

	q.RemoveForStream(0, 1)
	assert.Equal(t, 2, q.Len())

	drained := q.DrainUpTo(10)
	ids := []int64{}
	for _, m := range drained {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []int64{2, 3}, ids)
}
