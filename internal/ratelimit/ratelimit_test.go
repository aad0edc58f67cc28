package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginLimiterAllowsUnderBound(t *testing.T) {
	l := NewLoginLimiter(5, 15*time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("1.2.3.4"))
		l.RecordFailure("1.2.3.4")
	}
	assert.NoError(t, l.Allow("1.2.3.4"))
}

// TestLoginLimiterLocksOutAtBound exercises the literal "fifth wrong
// password within 15 min" scenario: four failures are let through, and the
// fifth attempt itself is rejected before it would be processed.
func TestLoginLimiterLocksOutAtBound(t *testing.T) {
	l := NewLoginLimiter(5, 15*time.Minute)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Allow("1.2.3.4"))
		l.RecordFailure("1.2.3.4")
	}
	err := l.Allow("1.2.3.4")
	assert.Error(t, err)
}

func TestLoginLimiterResetsAfterWindow(t *testing.T) {
	l := NewLoginLimiter(5, 15*time.Minute)
	for i := 0; i < 5; i++ {
		l.RecordFailure("1.2.3.4")
	}
	l.entries["1.2.3.4"].firstFail = time.Now().Add(-16 * time.Minute)

	assert.NoError(t, l.Allow("1.2.3.4"))
}

func TestLoginLimiterSuccessClearsLockout(t *testing.T) {
	l := NewLoginLimiter(5, 15*time.Minute)
	for i := 0; i < 5; i++ {
		l.RecordFailure("1.2.3.4")
	}
	l.RecordSuccess("1.2.3.4")
	assert.NoError(t, l.Allow("1.2.3.4"))
}

func TestLoginLimiterKeysIndependentlyBySource(t *testing.T) {
	l := NewLoginLimiter(5, 15*time.Minute)
	for i := 0; i < 5; i++ {
		l.RecordFailure("1.2.3.4")
	}
	assert.Error(t, l.Allow("1.2.3.4"))
	assert.NoError(t, l.Allow("5.6.7.8"))
}

func TestWakeLimiterAllowsUpToBurst(t *testing.T) {
	w := NewWakeLimiter(5)
	for i := 0; i < 5; i++ {
		assert.NoError(t, w.Allow("machine-1"))
	}
	assert.Error(t, w.Allow("machine-1"))
}

func TestWakeLimiterKeysIndependentlyBySource(t *testing.T) {
	w := NewWakeLimiter(1)
	require.NoError(t, w.Allow("machine-1"))
	assert.NoError(t, w.Allow("machine-2"))
}
