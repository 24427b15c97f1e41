package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annotify/annotify/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBreaker(t *testing.T) (*Breaker, *timex.ManualClock) {
	t.Helper()
	clock := timex.NewManualClock(time.Unix(0, 0))
	return NewBreaker(3, 30*time.Second, clock), clock
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b, _ := newBreaker(t)

	b.Failure()
	b.Failure()
	assert.True(t, b.Allow(), "still closed after 2 failures")

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b, clock := newBreaker(t)
	for i := 0; i < 3; i++ {
		b.Failure()
	}
	require.False(t, b.Allow())

	clock.Advance(29 * time.Second)
	assert.False(t, b.Allow(), "cooldown not yet elapsed")

	clock.Advance(2 * time.Second)
	assert.True(t, b.Allow(), "probe allowed after cooldown")
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreaker_SuccessCloses(t *testing.T) {
	b, clock := newBreaker(t)
	for i := 0; i < 3; i++ {
		b.Failure()
	}
	clock.Advance(31 * time.Second)
	require.True(t, b.Allow())

	b.Success()
	assert.Equal(t, BreakerClosed, b.State())

	// Failure count was reset: two new failures stay closed.
	b.Failure()
	b.Failure()
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newBreaker(t)
	for i := 0; i < 3; i++ {
		b.Failure()
	}
	clock.Advance(31 * time.Second)
	require.True(t, b.Allow())

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	// A fresh cooldown applies from the reopening.
	clock.Advance(31 * time.Second)
	assert.True(t, b.Allow())
}

func TestExponential_StopsAfterSuccess(t *testing.T) {
	calls := 0
	err := Exponential(context.Background(), 5, time.Nanosecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExponential_ReturnsLastErrorWhenExhausted(t *testing.T) {
	boom := errors.New("still down")
	calls := 0
	err := Exponential(context.Background(), 4, time.Nanosecond, func(ctx context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestConstant_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Constant(ctx, 5, time.Hour, func(ctx context.Context) error {
		return errors.New("never succeeds")
	})
	require.Error(t, err)
}
