package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("constraint violation")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestDoNeverRetriesContextErrors(t *testing.T) {
	// Even a retry-everything predicate must not outlive the caller's
	// deadline.
	cfg := fastConfig()
	cfg.Retryable = func(error) bool { return true }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return context.DeadlineExceeded
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, fastConfig(), func() error {
		attempts++
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errTransient
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", got)
}

func TestDelayForGrowsAndCaps(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.delayFor(1))
	assert.Equal(t, 200*time.Millisecond, cfg.delayFor(2))
	assert.Equal(t, 300*time.Millisecond, cfg.delayFor(3))
}
