// Package retry implements pluggable retry policies: a Policy computes
// the delay before each attempt, and a generic Do helper drives an
// operation through a Policy until it succeeds, the policy gives up, or
// the context is cancelled.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy decides whether attempt (1-indexed) should run, and if so,
// how long to wait beforehand.
type Policy interface {
	// NextDelay returns the delay before attempt n (n starts at 1 for
	// the first retry, i.e. it is never consulted before the initial
	// attempt) and whether attempt n should be made at all.
	NextDelay(attempt int) (time.Duration, bool)
}

// NoRetry makes exactly one attempt.
type NoRetry struct{}

func (NoRetry) NextDelay(attempt int) (time.Duration, bool) { return 0, false }

// FixedDelay retries up to MaxAttempts times (not counting the initial
// attempt), waiting Delay between each.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

func (p FixedDelay) NextDelay(attempt int) (time.Duration, bool) {
	if attempt > p.MaxAttempts {
		return 0, false
	}
	return p.Delay, true
}

// LinearBackoff waits Initial+Increment*(attempt-1) between each of up
// to MaxAttempts retries, capped at MaxDelay once reached (a zero
// MaxDelay leaves the delay uncapped).
type LinearBackoff struct {
	Initial     time.Duration
	Increment   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func (p LinearBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt > p.MaxAttempts {
		return 0, false
	}
	d := p.Initial + p.Increment*time.Duration(attempt-1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d, true
}

// ExponentialBackoff wraps cenkalti/backoff/v4's exponential policy,
// capping the number of retries at MaxAttempts. NextDelay builds a fresh
// backoff.ExponentialBackOff via NewBackOff on every call so concurrent
// operations don't share mutable interval state. Jitter is
// off by default, keeping the delay sequence strictly deterministic and
// monotonically non-decreasing; enabling it bounds the randomization to
// ±25% rather than cenkalti/backoff's wider ±50% default, trading some
// of that monotonicity guarantee for thundering-herd avoidance.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewBackOff constructs the underlying cenkalti/backoff policy for this
// configuration. NextDelay calls it once per attempt and advances the
// new instance attempt times with NextBackOff, so the delay for attempt
// n is re-derived from scratch on each call.
func (p ExponentialBackoff) NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.Jitter {
		b.RandomizationFactor = 0.25
	} else {
		b.RandomizationFactor = 0
	}
	b.MaxElapsedTime = 0 // attempt count governs termination, not elapsed time
	b.Reset()
	return b
}

func (p ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt > p.MaxAttempts {
		return 0, false
	}
	b := p.NewBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d, true
}

// Do runs op, retrying per policy until it succeeds, the policy
// exhausts its attempts, or ctx is cancelled. It returns the last
// error op produced (or ctx.Err() if cancellation pre-empted a retry).
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(lastErr, ctx.Err())
		}

		delay, ok := policy.NextDelay(attempt + 1)
		if !ok {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
}

// DoValue is Do generalized to an operation that also returns a value,
// for callers that want to retry a lookup/fetch rather than a bare
// side-effecting action.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
