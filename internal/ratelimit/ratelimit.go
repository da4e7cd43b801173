// Package ratelimit paces page loads against a marketplace.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer is waited on before every page load after the first.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Feedback is implemented by pacers that adapt to page-load outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// None never waits.
type None struct{}

func (None) Wait(ctx context.Context) error { return ctx.Err() }

type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
		sleep:    sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until at least a jittered delay has passed since the
// previous call. The first call returns immediately.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		elapsed := time.Since(r.lastAction)
		if delay := r.calculateDelay(); elapsed < delay {
			if err := r.sleep(ctx, delay-elapsed); err != nil {
				return err
			}
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// AdaptiveRateLimiter widens its delays after consecutive page-load errors
// and narrows them back towards the configured floor after a run of
// successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	floor         time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	ceiling       time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		floor:             minDelay,
		maxErrorCount:     3,
		backoffFactor:     1.5,
		ceiling:           60 * time.Second,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		if a.maxDelay < a.minDelay {
			a.maxDelay = a.minDelay
		}
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > a.ceiling {
			newMin = a.ceiling
		}
		if newMax > 2*a.ceiling {
			newMax = 2 * a.ceiling
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}
