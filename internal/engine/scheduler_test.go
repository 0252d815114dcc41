package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerAcquireReleaseCapacity(t *testing.T) {
	markers := NewMarkerQueue()
	sched := NewScheduler(2, markers)
	assert.Equal(t, 2, sched.Capacity())
	assert.Equal(t, 0, sched.UsedSlots())

	l1, err := sched.Acquire(8, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.UsedSlots())

	l2, err := sched.Acquire(8, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, sched.UsedSlots())
	assert.NotEqual(t, l1.StreamID, l2.StreamID)

	_, err = sched.Acquire(8, 8)
	assert.ErrorIs(t, err, ErrAtCapacity)

	sched.Release(l1.Slot.Index, l1.StreamID)
	assert.Equal(t, 1, sched.UsedSlots())

	l3, err := sched.Acquire(8, 8)
	require.NoError(t, err)
	assert.Equal(t, l1.Slot.Index, l3.Slot.Index, "freed index should be reused")
	assert.NotEqual(t, l1.StreamID, l3.StreamID, "reused slot must get a fresh stream id")
}

func TestSchedulerReleaseIgnoresStaleStreamID(t *testing.T) {
	markers := NewMarkerQueue()
	sched := NewScheduler(1, markers)
	lease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	sched.Release(lease.Slot.Index, lease.StreamID+1)
	assert.Equal(t, 1, sched.UsedSlots(), "release with the wrong stream id must be a no-op")

	sched.Release(lease.Slot.Index, lease.StreamID)
	assert.Equal(t, 0, sched.UsedSlots())
}

func TestSchedulerActiveIndicesSnapshot(t *testing.T) {
	markers := NewMarkerQueue()
	sched := NewScheduler(3, markers)
	l0, _ := sched.Acquire(8, 8)
	l1, _ := sched.Acquire(8, 8)

	active := sched.ActiveIndices()
	assert.ElementsMatch(t, []int{l0.Slot.Index, l1.Slot.Index}, active)

	sched.Release(l0.Slot.Index, l0.StreamID)
	active = sched.ActiveIndices()
	assert.ElementsMatch(t, []int{l1.Slot.Index}, active)
}
