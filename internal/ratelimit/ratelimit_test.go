package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNone(t *testing.T) {
	assert.NoError(t, None{}.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, None{}.Wait(ctx), context.Canceled)
}

func TestSimpleRateLimiter_FirstWaitImmediate(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, r.Wait(context.Background()))
	assert.Empty(t, slept)

	require.NoError(t, r.Wait(context.Background()))
	require.Len(t, slept, 1)
	assert.InDelta(t, float64(time.Hour), float64(slept[0]), float64(time.Second))
}

func TestSimpleRateLimiter_CancelledSleep(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestSimpleRateLimiter_JitterWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(100*time.Millisecond, 300*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond)
	}
}

func TestSimpleRateLimiter_MaxBelowMin(t *testing.T) {
	r := NewSimpleRateLimiter(2*time.Second, time.Second)
	min, max := r.Delays()
	assert.Equal(t, 2*time.Second, min)
	assert.Equal(t, 2*time.Second, max)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	t.Run("backs off after repeated errors", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 2*time.Second)
		a.RecordError()
		a.RecordError()
		min, _ := a.Delays()
		assert.Equal(t, time.Second, min)

		a.RecordError()
		min, max := a.Delays()
		assert.Equal(t, 1500*time.Millisecond, min)
		assert.Equal(t, 3*time.Second, max)
	})

	t.Run("success resets the error streak", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 2*time.Second)
		a.RecordError()
		a.RecordError()
		a.RecordSuccess()
		a.RecordError()
		min, _ := a.Delays()
		assert.Equal(t, time.Second, min)
	})

	t.Run("recovers but never below the floor", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 2*time.Second)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		for i := 0; i < 60; i++ {
			a.RecordSuccess()
		}
		min, max := a.Delays()
		assert.Equal(t, time.Second, min)
		assert.GreaterOrEqual(t, max, min)
	})

	t.Run("capped at the ceiling", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)
		for i := 0; i < 30; i++ {
			a.RecordError()
		}
		min, max := a.Delays()
		assert.Equal(t, 60*time.Second, min)
		assert.Equal(t, 120*time.Second, max)
	})

	var _ Feedback = NewAdaptiveRateLimiter(0, 0)
	var _ Pacer = None{}
}
