package engine

import "container/heap"

// Marker is a client-injected sentinel that the post-process stage echoes
// back once the pipeline has produced output through TargetStep (spec.md §3
// "Marker"). It is addressed to a slot AND a stream id: if the slot has
// been released and reacquired by a different client before TargetStep is
// reached, the marker is dropped rather than delivered to the new occupant
// (spec.md §4.6 "stream-id gated delivery").
type Marker struct {
	ID         int64
	SlotIndex  int
	StreamID   StreamID
	TargetStep uint64
}

// markerHeap is a container/heap min-heap ordered by TargetStep, so the
// smallest target step is always at index 0 and pops first. This mirrors
// the Rust implementation's reverse-ordered Ord wrapped in a max-heap
// (batched_asr.rs), expressed directly as Go's min-heap idiom instead.
type markerHeap []Marker

func (h markerHeap) Len() int            { return len(h) }
func (h markerHeap) Less(i, j int) bool  { return h[i].TargetStep < h[j].TargetStep }
func (h markerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *markerHeap) Push(x any)         { *h = append(*h, x.(Marker)) }
func (h *markerHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}

// MarkerQueue is the engine-wide marker priority queue. A single instance is
// shared by all slots; the post-process stage drains it once per step
// (spec.md §4.6).
type MarkerQueue struct {
	h markerHeap
}

// NewMarkerQueue returns an empty marker queue ready for use.
func NewMarkerQueue() *MarkerQueue {
	q := &MarkerQueue{}
	heap.Init(&q.h)
	return q
}

// Push inserts a marker. The pipeline computes TargetStep at injection time
// as current_global_step + asr_delay_in_tokens + ceil(residue/F), on the
// same global tick scale DrainUpTo is called with; MarkerQueue itself is
// agnostic to that formula.
func (q *MarkerQueue) Push(m Marker) {
	heap.Push(&q.h, m)
}

// DrainUpTo pops and returns every marker whose TargetStep is <= step, in
// non-decreasing TargetStep order. Callers are expected to check each
// returned marker's StreamID against the slot's current occupant before
// delivering it (the queue itself does not hold slot references and so
// cannot perform that check).
func (q *MarkerQueue) DrainUpTo(step uint64) []Marker {
	var drained []Marker
	for q.h.Len() > 0 && q.h[0].TargetStep <= step {
		drained = append(drained, heap.Pop(&q.h).(Marker))
	}
	return drained
}

// Len reports the number of markers still pending.
func (q *MarkerQueue) Len() int { return q.h.Len() }

// RemoveForStream drops any pending markers addressed to the given slot
// whose StreamID equals ref, the occupancy being torn down; markers for
// other slots or other stream ids are kept. Called when a slot is released, so
// a future, unrelated occupant of the same index never has stale markers
// waiting on its behalf.
func (q *MarkerQueue) RemoveForStream(slotIndex int, ref StreamID) {
	kept := q.h[:0]
	for _, m := range q.h {
		if m.SlotIndex == slotIndex && m.StreamID == ref {
			continue
		}
		kept = append(kept, m)
	}
	q.h = kept
	heap.Init(&q.h)
}
