package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	cfg := DefaultCircuitBreakerConfig("units")
	cfg.FailureThreshold = 2
	cfg.MinRequestsToTrip = 0
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	cb := NewCircuitBreaker(cfg, nil)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
	assert.Equal(t, 2, StateValue(cb.State()))
}

func TestCall_ReturnsTypedResult(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("typed"), nil)

	n, err := Call(context.Background(), cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	permanent := errors.New("permanent")
	cfg := &RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 2,
		Retryable:     func(err error) bool { return !errors.Is(err, permanent) },
	}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
	assert.Equal(t, 3, attempts)
}
