// Package audio defines the fixed-size frame and batch-frame data model the
// rest of the engine is built around (spec.md §3 "Frame", "Batch frame").
package audio

const (
	// SampleRateHz is the canonical sample rate all PCM entering the engine
	// is assumed to already be at. Nothing resamples: raw Audio is taken
	// as-is, and the session's Opus decoder is built to output this rate.
	SampleRateHz = 24000

	// FrameSamples is F: the atomic unit consumed by the encoder, 80ms of
	// audio at SampleRateHz.
	FrameSamples = 1920

	// FrameDurationMs is the wall-clock duration of one frame / one tick.
	FrameDurationMs = 80
)

// Frame is exactly FrameSamples float32 PCM samples.
type Frame [FrameSamples]float32

// BatchFrame is the B*F slot-major buffer consumed by one encoder step,
// plus the parallel activity mask. The pipeline's pre-process stage
// allocates a fresh one every tick and hands it down the stage channels,
// so the encode and post-process stages both read it; it is not reused
// across ticks.
type BatchFrame struct {
	Width  int
	PCM    []float32 // len == Width*FrameSamples, slot-major
	Active []bool    // len == Width
}

// NewBatchFrame allocates a batch frame for a batch of the given width.
func NewBatchFrame(width int) *BatchFrame {
	return &BatchFrame{
		Width:  width,
		PCM:    make([]float32, width*FrameSamples),
		Active: make([]bool, width),
	}
}

// Row returns the mutable slice backing slot i's row of the batch frame.
func (b *BatchFrame) Row(i int) []float32 {
	return b.PCM[i*FrameSamples : (i+1)*FrameSamples]
}

// Reset zero-fills every row and clears the activity mask, leaving every
// inactive row all-zero (spec.md §8 invariant 1). The pipeline does not
// call it, since it allocates a fresh, already-zero frame every tick.
func (b *BatchFrame) Reset() {
	for i := range b.PCM {
		b.PCM[i] = 0
	}
	for i := range b.Active {
		b.Active[i] = false
	}
}

// ZeroRow zero-fills and deactivates a single row, leaving the rest of the
// batch frame untouched. Used by pre-process when a slot produces no data
// this tick.
func (b *BatchFrame) ZeroRow(i int) {
	row := b.Row(i)
	for j := range row {
		row[j] = 0
	}
	b.Active[i] = false
}
