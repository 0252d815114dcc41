package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rapidaai/streamasr/internal/audio"
)

func TestSlotResidueFrameBoundary(t *testing.T) {
	s := newSlot(0)
	ref, _, _ := s.bind(4, 4)

	almostFrame := make([]float32, audio.FrameSamples-1)
	s.appendResidue(ref, almostFrame)

	row := make([]float32, audio.FrameSamples)
	assert.False(t, s.drainResidue(ref, row), "one sample short of a frame must not drain")
	assert.Equal(t, 1, s.pendingResidueFrames(ref), "partial residue still rounds up to one pending frame")

	s.appendResidue(ref, []float32{1})
	assert.True(t, s.drainResidue(ref, row), "exactly F samples must drain")
	assert.Equal(t, 0, s.pendingResidueFrames(ref))
}

func TestSlotSendGatedByStreamID(t *testing.T) {
	s := newSlot(0)
	ref, _, outCh := s.bind(4, 4)

	assert.True(t, s.Send(ref, OutReady{}))
	select {
	case <-outCh:
	default:
		t.Fatal("expected message delivered to current occupant")
	}

	staleRef := ref + 1
	assert.True(t, s.Send(staleRef, OutReady{}), "stale ref send must report success (silent drop), not failure")
	select {
	case <-outCh:
		t.Fatal("message addressed to a stale stream id must never reach the current occupant's queue")
	default:
	}
}

func TestSlotUnbindClosesOutput(t *testing.T) {
	s := newSlot(0)
	ref, _, outCh := s.bind(4, 4)
	_ = ref
	s.unbind()

	_, ok := <-outCh
	assert.False(t, ok, "unbind must close the occupant's output channel")
	assert.Equal(t, StreamID(0), s.StreamID())
}

func TestSlotNeedsResetOnlyOnceAfterBind(t *testing.T) {
	s := newSlot(0)
	ref, _, _ := s.bind(4, 4)
	assert.True(t, s.needsReset(ref))
	s.clearNeedsReset(ref)
	assert.False(t, s.needsReset(ref))
}
