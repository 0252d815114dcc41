package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/streamasr/internal/audio"
)

// recordingModel captures every EncodeStep call's mask and every Reset row,
// letting tests assert on masking and reset behavior across ticks.
type recordingModel struct {
	mu     sync.Mutex
	masks  [][]bool
	resets []int
}

func (m *recordingModel) EncodeStep(_ context.Context, pcm []float32, active []bool) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]bool, len(active))
	copy(cp, active)
	m.masks = append(m.masks, cp)

	tokens := make([]int64, len(active))
	for i, a := range active {
		if a {
			tokens[i] = 1
		}
	}
	return tokens, nil
}

func (m *recordingModel) Step(_ context.Context, audioTokens []int64, active []bool) ([]StepResult, error) {
	results := make([]StepResult, len(active))
	for i, a := range active {
		if a {
			results[i] = StepResult{TokenValid: true, TextToken: 42}
		}
	}
	return results, nil
}

func (m *recordingModel) Reset(row int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, row)
}

func (m *recordingModel) Warmup(context.Context, int, int) error { return nil }
func (m *recordingModel) Detokenize(int64) (string, error)       { return "hi", nil }

func newTestPipeline(t *testing.T, width int) (*Pipeline, *Scheduler, *recordingModel) {
	t.Helper()
	markers := NewMarkerQueue()
	sched := NewScheduler(width, markers)
	model := &recordingModel{}
	cfg := DefaultConfig(width, 0)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := NewPipeline(cfg, sched, markers, model, model, model, metrics, nil, nil)
	return p, sched, model
}

func TestPreProcessTickZeroesInactiveRows(t *testing.T) {
	p, sched, _ := newTestPipeline(t, 2)
	lease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	// Slot 0 has an occupant with no audio yet; slot 1 is free entirely.
	_ = lease

	out := p.preProcessTick()
	for i := 0; i < 2; i++ {
		assert.False(t, out.batch.Active[i])
		row := out.batch.Row(i)
		for _, v := range row {
			assert.Equal(t, float32(0), v)
		}
	}
}

func TestPreProcessTickProducesFrameFromResidue(t *testing.T) {
	p, sched, _ := newTestPipeline(t, 1)
	lease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	pcm := make([]float32, audio.FrameSamples)
	for i := range pcm {
		pcm[i] = 0.5
	}
	lease.InCh <- InAudio{PCM: pcm}

	out := p.preProcessTick()
	assert.True(t, out.batch.Active[lease.Slot.Index])
	row := out.batch.Row(lease.Slot.Index)
	assert.Equal(t, float32(0.5), row[0])
}

func TestPreProcessTickResetsFreshOccupantOnce(t *testing.T) {
	p, sched, model := newTestPipeline(t, 1)
	lease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	p.preProcessTick()
	p.preProcessTick()

	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, []int{lease.Slot.Index}, model.resets, "reset must fire exactly once per occupancy")
}

func TestPreProcessTickHandlesInitAndMarker(t *testing.T) {
	p, sched, _ := newTestPipeline(t, 1)
	lease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	lease.InCh <- InInit{}
	lease.InCh <- InMarker{ID: 7}

	p.preProcessTick()

	select {
	case out := <-lease.OutCh:
		_, ok := out.(OutReady)
		assert.True(t, ok, "Init must produce an immediate Ready")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ready")
	}

	assert.Equal(t, 1, p.markers.Len(), "Marker must be queued for later delivery")
}

func TestPostProcessDispatchGatedByStreamID(t *testing.T) {
	p, sched, _ := newTestPipeline(t, 1)
	lease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	pcm := make([]float32, audio.FrameSamples)
	lease.InCh <- InAudio{PCM: pcm}
	pre := p.preProcessTick()

	// Release and reacquire the same index before dispatch runs, simulating
	// a slot reused by a different client mid-flight.
	sched.Release(lease.Slot.Index, lease.StreamID)
	newLease, err := sched.Acquire(8, 8)
	require.NoError(t, err)

	enc := encodeOutput{preProcessOutput: pre, audioTokens: make([]int64, 1)}
	results := []StepResult{{TokenValid: true, TextToken: 1}}
	p.dispatch(enc, results)

	select {
	case out := <-newLease.OutCh:
		t.Fatalf("stale-stream output must never reach the new occupant, got %#v", out)
	default:
	}
}
