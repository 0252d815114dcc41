package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveComputeDTypeOverrideWins(t *testing.T) {
	dt, err := ResolveComputeDType("f32", AcceleratorCaps{ComputeCapabilityMajor: 9})
	require.NoError(t, err)
	assert.Equal(t, DTypeF32, dt)
}

func TestResolveComputeDTypeDefaultsBF16OnAmpereOrNewer(t *testing.T) {
	dt, err := ResolveComputeDType("", AcceleratorCaps{ComputeCapabilityMajor: 8, ComputeCapabilityMinor: 6})
	require.NoError(t, err)
	assert.Equal(t, DTypeBF16, dt)
}

func TestResolveComputeDTypeFallsBackToF16OnPreAmpere(t *testing.T) {
	dt, err := ResolveComputeDType("", AcceleratorCaps{ComputeCapabilityMajor: 7, ComputeCapabilityMinor: 5})
	require.NoError(t, err)
	assert.Equal(t, DTypeF16, dt)
}

func TestResolveComputeDTypeRejectsUnknownOverride(t *testing.T) {
	_, err := ResolveComputeDType("int8", AcceleratorCaps{})
	assert.Error(t, err)
}
