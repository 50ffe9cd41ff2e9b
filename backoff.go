package chcommon

import (
	"math"
	"time"
)

// BackoffStrategy produces the raw delay schedule of a [RetryPolicy]. The
// policy applies the max delay cap and jitter on top of it.
//
// Pattern: Strategy — swap delay schedules without changing the retry loop.
type BackoffStrategy interface {
	// Delay returns the wait after the given failed attempt (1-indexed:
	// attempt 1 is the wait between the first and second attempt).
	Delay(attempt int) time.Duration
}

// BackoffFunc adapts an ordinary function into a [BackoffStrategy].
type BackoffFunc func(attempt int) time.Duration

// Delay calls the underlying function.
func (f BackoffFunc) Delay(attempt int) time.Duration { return f(attempt) }

// ---------------------------------------------------------------------------
// ConstantBackoff
// ---------------------------------------------------------------------------

type constantBackoff struct {
	d time.Duration
}

func (b *constantBackoff) Delay(int) time.Duration { return b.d }

// ConstantBackoff waits d after every attempt.
func ConstantBackoff(d time.Duration) BackoffStrategy {
	return &constantBackoff{d: d}
}

// ---------------------------------------------------------------------------
// LinearBackoff
// ---------------------------------------------------------------------------

type linearBackoff struct {
	step time.Duration
}

func (b *linearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	return saturate(float64(b.step) * float64(attempt))
}

// LinearBackoff waits step * attempt.
func LinearBackoff(step time.Duration) BackoffStrategy {
	return &linearBackoff{step: step}
}

// ---------------------------------------------------------------------------
// ExponentialBackoff
// ---------------------------------------------------------------------------

type exponentialBackoff struct {
	base       time.Duration
	multiplier float64
}

func (b *exponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	return saturate(float64(b.base) * math.Pow(b.multiplier, float64(attempt-1)))
}

// ExponentialBackoff waits base * multiplier^(attempt-1).
func ExponentialBackoff(base time.Duration, multiplier float64) BackoffStrategy {
	return &exponentialBackoff{base: base, multiplier: multiplier}
}

// saturate converts a float nanosecond count to a Duration, clamping instead
// of overflowing.
func saturate(ns float64) time.Duration {
	switch {
	case math.IsNaN(ns), ns <= 0:
		return 0
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	default:
		return time.Duration(ns)
	}
}
