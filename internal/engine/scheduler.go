package engine

import "sync"

// Scheduler owns the fixed-size pool of B slots and the free/active index
// lists that decide which slots the pipeline walks each tick (spec.md §4.1
// "Slot Scheduler"). It is grounded directly on batched_asr.rs's
// BatchedAsrInner.{channels,free_indices,active_indices} and its
// channels()/cleanup logic in pre_process_pipelined.
type Scheduler struct {
	mu      sync.Mutex
	slots   []*Slot
	free    []int // FIFO of free slot indices
	active  []int // unordered set of occupied slot indices, as a slice
	markers *MarkerQueue
}

// NewScheduler allocates a pool of capacity slots, all initially free.
func NewScheduler(capacity int, markers *MarkerQueue) *Scheduler {
	s := &Scheduler{
		slots:   make([]*Slot, capacity),
		free:    make([]int, capacity),
		markers: markers,
	}
	for i := 0; i < capacity; i++ {
		s.slots[i] = newSlot(i)
		s.free[i] = i
	}
	return s
}

// Capacity returns the fixed batch width B.
func (s *Scheduler) Capacity() int { return len(s.slots) }

// UsedSlots reports the current number of occupied slots.
func (s *Scheduler) UsedSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ErrAtCapacity is returned by Acquire when every slot is occupied. Session
// admission maps this to the ServerAtCapacity close code (spec.md §4.2).
var ErrAtCapacity = schedulerError("engine: no free slot")

type schedulerError string

func (e schedulerError) Error() string { return string(e) }

// Lease is the handle a session holds for the lifetime of one connection:
// the slot it was assigned, the stream id stamped on acquisition, and the
// message channels bound to that occupancy.
type Lease struct {
	Slot     *Slot
	StreamID StreamID
	InCh     chan<- InMessage
	OutCh    <-chan OutMessage
}

// Acquire pops a free slot index, binds a new occupant to it with a fresh
// stream id, and moves the index to the active set. Returns ErrAtCapacity
// if no slot is free.
func (s *Scheduler) Acquire(inSize, outSize int) (Lease, error) {
	s.mu.Lock()
	if len(s.free) == 0 {
		s.mu.Unlock()
		return Lease{}, ErrAtCapacity
	}
	idx := s.free[0]
	s.free = s.free[1:]
	s.active = append(s.active, idx)
	s.mu.Unlock()

	slot := s.slots[idx]
	id, in, out := slot.bind(inSize, outSize)
	return Lease{Slot: slot, StreamID: id, InCh: in, OutCh: out}, nil
}

// Release tears a slot down by index: drops pending markers addressed to
// it, unbinds its occupant (closing its output channel), and returns the
// index to the free list. The occupant's residue and counters go with it;
// the LM's per-row context is reset separately, on the next occupant's
// first pre-process tick, via the needsReset flag bind sets. ref must match the slot's
// current occupant or the release is ignored, since a stale release call
// racing a fresh Acquire must never tear down the new occupant.
func (s *Scheduler) Release(idx int, ref StreamID) {
	slot := s.slots[idx]
	if slot.StreamID() != ref {
		return
	}
	if s.markers != nil {
		s.markers.RemoveForStream(idx, ref)
	}
	slot.setDraining()
	slot.unbind()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.active {
		if a == idx {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	s.free = append(s.free, idx)
}

// ActiveIndices returns a snapshot of currently-occupied slot indices. The
// pipeline takes this snapshot once per tick and then works the list
// without holding the scheduler lock, per spec.md §9's design note: acquire
// -> snapshot indices -> release -> work, never hold slot locks across
// model calls.
func (s *Scheduler) ActiveIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.active))
	copy(out, s.active)
	return out
}

// SlotAt returns the slot at index i. Valid for i in [0,Capacity()).
func (s *Scheduler) SlotAt(i int) *Slot { return s.slots[i] }
