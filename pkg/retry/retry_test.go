package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayDoublesUntilSaturation(t *testing.T) {
	cfg := Config{
		MaxAttempts:  10,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second}, // 80s capped
		{6, 60 * time.Second},
		{10, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, cfg.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDelayIsMonotonicallyNonDecreasing(t *testing.T) {
	cfg := Reconnect()
	prev := time.Duration(0)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		d := cfg.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must not decrease at attempt %d", attempt)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
		prev = d
	}
	assert.Equal(t, cfg.MaxDelay, cfg.Delay(cfg.MaxAttempts))
}

func TestExhausted(t *testing.T) {
	cfg := Config{MaxAttempts: 3}
	assert.False(t, cfg.Exhausted(1))
	assert.False(t, cfg.Exhausted(3))
	assert.True(t, cfg.Exhausted(4))

	unbounded := Config{MaxAttempts: 0}
	assert.False(t, unbounded.Exhausted(1000))
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	sentinel := errors.New("bad input")
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return NonRetryable(sentinel)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 1, attempts)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	sentinel := errors.New("still failing")
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 3, attempts)
}

func TestDoHonoursContextCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func() error {
			attempts++
			return errors.New("transient")
		})
	}()

	// Cancel while the first backoff timer is pending.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDoKeepsAttemptErrorAfterDeadline(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	sentinel := errors.New("upstream timed out")
	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		time.Sleep(20 * time.Millisecond)
		return sentinel
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel), "attempt error must survive context expiry")
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	value, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}
