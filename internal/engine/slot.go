package engine

import (
	"sync"

	"github.com/rapidaai/streamasr/internal/audio"
)

// slotState is a slot's lifecycle position (spec.md §3 invariant: a slot
// transitions free -> occupied -> draining -> free and never skips states).
type slotState int

const (
	slotFree slotState = iota
	slotOccupied
	slotDraining
)

// occupant holds everything owned by whichever client currently holds a
// slot: its queues, residue buffer, and position counters. A slot's
// occupant is replaced wholesale on every acquire, never mutated in place,
// so a stale reference to a previous occupant is trivially distinguishable
// via StreamID.
type occupant struct {
	streamID StreamID

	inCh  chan InMessage  // session (producer) -> pre-process (consumer)
	outCh chan OutMessage // post-process (producer) -> session (consumer)

	// residue is the per-slot PCM tail that has arrived but does not yet
	// fill a full audio.FrameSamples frame (spec.md §3 "Residue").
	residue []float32

	inputFramesConsumed uint64
	outputStepsEmitted  uint64

	// needsReset is true until the occupant's first tick has been folded
	// into the LM's per-row context, telling the pipeline to call
	// LanguageModel.Reset(row) once before stepping so no prior occupant's
	// KV-cache state leaks into the new one (spec.md §4.1).
	needsReset bool
}

// Slot is a fixed-index record i in [0,B). Slot is its own short critical
// section: the scheduler's free-list/active-list mutex is separate and
// coarser, but per-slot content (occupant, residue) is guarded here so the
// pipeline never has to hold the scheduler-wide lock while touching PCM.
type Slot struct {
	Index int

	mu    sync.Mutex
	state slotState
	occ   *occupant
}

func newSlot(i int) *Slot {
	return &Slot{Index: i, state: slotFree}
}

// bind installs a fresh occupant and marks the slot occupied. Called only
// by the scheduler, after it has popped this index off the free list under
// its free-list/active-list lock, so there is no race with another acquire
// for the same index.
func (s *Slot) bind(inSize, outSize int) (StreamID, chan InMessage, chan OutMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := nextStreamID()
	in := make(chan InMessage, inSize)
	out := make(chan OutMessage, outSize)
	s.occ = &occupant{streamID: id, inCh: in, outCh: out, needsReset: true}
	s.state = slotOccupied
	return id, in, out
}

// StreamID returns the current occupant's stream id, or 0 if the slot is
// free. Used by callers that only hold a slot index (e.g. markers) to check
// whether their captured stream id is still current.
func (s *Slot) StreamID() StreamID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil {
		return 0
	}
	return s.occ.streamID
}

// Send delivers msg to the slot's output queue, but only if ref matches the
// slot's current occupant. A mismatch means the slot has been released and
// reacquired since ref was captured, so the message is silently dropped
// rather than misdelivered to a new client (spec.md §3, §4.5, §4.6).
//
// Returns false only if the queue is full, which the caller may use as a
// signal to drop the occupant on severe backpressure. A send to a stale or
// empty slot is dropped and reports true.
func (s *Slot) Send(ref StreamID, msg OutMessage) bool {
	s.mu.Lock()
	occ := s.occ
	s.mu.Unlock()
	if occ == nil || occ.streamID != ref {
		return true // not a delivery failure, just a stale destination
	}
	select {
	case occ.outCh <- msg:
		return true
	default:
		return false
	}
}

// drainResidue copies exactly audio.FrameSamples samples from the residue
// buffer that belongs to the given stream id into row, advancing the
// residue head, when at least that many are buffered. Returns true if a
// full frame was produced; otherwise nothing is copied.
func (s *Slot) drainResidue(ref StreamID, row []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil || s.occ.streamID != ref {
		return false
	}
	if len(s.occ.residue) < audio.FrameSamples {
		return false
	}
	copy(row, s.occ.residue[:audio.FrameSamples])
	s.occ.residue = s.occ.residue[audio.FrameSamples:]
	s.occ.inputFramesConsumed++
	return true
}

// appendResidue appends newly arrived PCM to the slot's residue buffer.
func (s *Slot) appendResidue(ref StreamID, pcm []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil || s.occ.streamID != ref {
		return
	}
	s.occ.residue = append(s.occ.residue, pcm...)
}

// pendingResidueFrames returns ceil(len(residue)/F), used by the marker
// engine to compute a marker's target step at injection time (spec.md §3
// "Per-slot position").
func (s *Slot) pendingResidueFrames(ref StreamID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil || s.occ.streamID != ref {
		return 0
	}
	return (len(s.occ.residue) + audio.FrameSamples - 1) / audio.FrameSamples
}

func (s *Slot) outputStepsEmittedFor(ref StreamID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil || s.occ.streamID != ref {
		return 0
	}
	return s.occ.outputStepsEmitted
}

func (s *Slot) incrementStep(ref StreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil || s.occ.streamID != ref {
		return
	}
	s.occ.outputStepsEmitted++
}

func (s *Slot) bufferedPCM(ref StreamID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ == nil || s.occ.streamID != ref {
		return 0
	}
	return len(s.occ.residue)
}

// drainInbound non-blockingly pulls every InMessage currently queued for
// ref's occupancy, in arrival order. Used by pre-process once per tick
// instead of blocking on a channel receive, since a slot with nothing
// queued must not stall the rest of the active batch (spec.md §4.3
// "Pre-process Stage").
func (s *Slot) drainInbound(ref StreamID) []InMessage {
	s.mu.Lock()
	occ := s.occ
	s.mu.Unlock()
	if occ == nil || occ.streamID != ref {
		return nil
	}
	var msgs []InMessage
	for {
		select {
		case m, ok := <-occ.inCh:
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

// unbind clears the occupant, closing its output channel, and returns the
// slot to free. Called by Scheduler.Release. The LM's per-row context is
// not reset here: the next occupant's bind sets needsReset, and the
// pipeline calls LanguageModel.Reset on that occupant's first tick.
func (s *Slot) unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ != nil {
		close(s.occ.outCh)
	}
	s.occ = nil
	s.state = slotFree
}

// needsReset and clearNeedsReset coordinate the one-time per-occupancy LM
// context reset described above.
func (s *Slot) needsReset(ref StreamID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occ != nil && s.occ.streamID == ref && s.occ.needsReset
}

func (s *Slot) clearNeedsReset(ref StreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ != nil && s.occ.streamID == ref {
		s.occ.needsReset = false
	}
}

// scheduleReset re-arms needsReset on an already-bound occupant, used when a
// client sends Init mid-session: the conservative reading of that ambiguous
// case is a full per-slot reset before the next step, not just a Ready echo
// (spec.md §4.2, §9 Open Questions).
func (s *Slot) scheduleReset(ref StreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occ != nil && s.occ.streamID == ref {
		s.occ.needsReset = true
	}
}

func (s *Slot) setDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = slotDraining
}
