package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseCodeRetryableSet(t *testing.T) {
	retryable := []CloseCode{
		CloseServerAtCapacity,
		CloseRateLimited,
		CloseResourceUnavailable,
		CloseClientTimeout,
		CloseServiceRestart,
		CloseTryAgainLater,
	}
	for _, c := range retryable {
		assert.True(t, c.Retryable(), "%s should be retryable", c)
	}

	terminal := []CloseCode{
		CloseNormal,
		CloseAuthenticationFailed,
		CloseSessionTimeout,
		CloseInvalidMessage,
	}
	for _, c := range terminal {
		assert.False(t, c.Retryable(), "%s should not be retryable", c)
	}
}

func TestCloseCodeString(t *testing.T) {
	assert.Equal(t, "server_at_capacity", CloseServerAtCapacity.String())
	assert.Equal(t, "unknown", CloseCode(9999).String())
}
