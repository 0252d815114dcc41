package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineValidatesConfig(t *testing.T) {
	model := &recordingModel{}
	reg := prometheus.NewRegistry()
	_, err := New(Config{BatchWidth: 0}, model, model, model, reg, nil, nil)
	assert.Error(t, err)
}

func TestEngineAcquireReleaseUpdatesUsedSlots(t *testing.T) {
	model := &recordingModel{}
	reg := prometheus.NewRegistry()
	eng, err := New(DefaultConfig(2, 0), model, model, model, reg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, eng.Capacity())
	assert.Equal(t, 0, eng.UsedSlots())

	lease, err := eng.Acquire(4, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, eng.UsedSlots())

	eng.Release(lease)
	assert.Equal(t, 0, eng.UsedSlots())
}

// failingWarmupModel is a recordingModel whose Warmup always fails.
type failingWarmupModel struct{ recordingModel }

func (m *failingWarmupModel) Warmup(context.Context, int, int) error {
	return errors.New("warmup failed")
}

func TestEngineWarmupDoesNotPanicOnFailure(t *testing.T) {
	model := &failingWarmupModel{}
	reg := prometheus.NewRegistry()
	eng, err := New(DefaultConfig(1, 0), model, model, model, reg, nil, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { eng.Warmup(context.Background()) })
}
