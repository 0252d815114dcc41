package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	l := NewInMemoryLimiter(0, 2) // zero refill rate isolates the burst-only behavior
	ctx := context.Background()

	ok, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok, "burst of 2 must be exhausted on the third call")
}

func TestInMemoryLimiterTracksKeysIndependently(t *testing.T) {
	l := NewInMemoryLimiter(0, 1)
	ctx := context.Background()

	okA, _ := l.Allow(ctx, "a")
	okB, _ := l.Allow(ctx, "b")
	assert.True(t, okA)
	assert.True(t, okB, "separate keys must have independent budgets")
}
