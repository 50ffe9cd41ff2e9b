package chcommon

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ---------------------------------------------------------------------------
// RetryPolicy — immutable retry configuration
// ---------------------------------------------------------------------------

// RetryPolicy decides how many times a call is attempted, how long to wait
// between attempts and which failures are worth retrying. It holds no mutable
// state and is safe to share between any number of concurrent callers.
//
// Pattern: Functional Options — configured through [NewRetryPolicy].
type RetryPolicy struct {
	strategy    BackoffStrategy
	retryable   func(error) bool
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	maxAttempts int
	jitter      bool
	baseSet     bool
}

// PolicyOption configures a [RetryPolicy].
type PolicyOption func(*RetryPolicy)

// Defaults applied by [NewRetryPolicy].
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 30 * time.Second
)

// MaxAttempts sets the total number of attempts, first one included.
func MaxAttempts(n int) PolicyOption {
	return func(p *RetryPolicy) { p.maxAttempts = n }
}

// BaseDelay sets the wait after the first failed attempt.
func BaseDelay(d time.Duration) PolicyOption {
	return func(p *RetryPolicy) { p.baseDelay, p.baseSet = d, true }
}

// Multiplier sets the exponential growth factor of the delay.
func Multiplier(m float64) PolicyOption {
	return func(p *RetryPolicy) { p.multiplier = m }
}

// MaxDelay caps every computed delay. When BaseDelay is not given and the
// cap is below [DefaultBaseDelay], the base delay is lowered to the cap.
func MaxDelay(d time.Duration) PolicyOption {
	return func(p *RetryPolicy) { p.maxDelay = d }
}

// Jitter enables full jitter: each delay is drawn uniformly from [0, delay].
func Jitter(enabled bool) PolicyOption {
	return func(p *RetryPolicy) { p.jitter = enabled }
}

// Backoff replaces the exponential schedule derived from BaseDelay and
// Multiplier.
func Backoff(s BackoffStrategy) PolicyOption {
	return func(p *RetryPolicy) { p.strategy = s }
}

// RetryIf sets the predicate deciding whether an error is retryable.
func RetryIf(fn func(error) bool) PolicyOption {
	return func(p *RetryPolicy) { p.retryable = fn }
}

// WithClassification uses table as the retryable predicate.
func WithClassification(table ClassificationTable) PolicyOption {
	t := table.Clone()
	return RetryIf(t.Retryable)
}

// NewRetryPolicy builds a policy, applying defaults for unset values. It
// returns [ErrInvalidPolicy] when maxAttempts < 1, multiplier < 1, a delay is
// negative or maxDelay is below an explicit baseDelay.
func NewRetryPolicy(opts ...PolicyOption) (*RetryPolicy, error) {
	p := &RetryPolicy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		multiplier:  DefaultMultiplier,
		maxDelay:    DefaultMaxDelay,
	}

	for _, opt := range opts {
		opt(p)
	}

	if !p.baseSet && p.maxDelay >= 0 && p.maxDelay < p.baseDelay {
		p.baseDelay = p.maxDelay
	}

	switch {
	case p.maxAttempts < 1:
		return nil, fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, p.maxAttempts)
	case p.multiplier < 1:
		return nil, fmt.Errorf("%w: backoff multiplier %g < 1", ErrInvalidPolicy, p.multiplier)
	case p.baseDelay < 0:
		return nil, fmt.Errorf("%w: negative base delay %v", ErrInvalidPolicy, p.baseDelay)
	case p.maxDelay < p.baseDelay:
		return nil, fmt.Errorf("%w: max delay %v below base delay %v", ErrInvalidPolicy, p.maxDelay, p.baseDelay)
	}

	if p.strategy == nil {
		p.strategy = ExponentialBackoff(p.baseDelay, p.multiplier)
	}

	if p.retryable == nil {
		p.retryable = DefaultClassification().Retryable
	}

	return p, nil
}

// MustRetryPolicy is like [NewRetryPolicy] but panics on invalid settings.
// Intended for package-level presets built from constants.
func MustRetryPolicy(opts ...PolicyOption) *RetryPolicy {
	p, err := NewRetryPolicy(opts...)
	if err != nil {
		panic("chcommon: " + err.Error())
	}

	return p
}

// MaxAttempts returns the total number of attempts allowed.
func (p *RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// BaseDelay returns the configured base delay.
func (p *RetryPolicy) BaseDelay() time.Duration { return p.baseDelay }

// MaxDelay returns the delay cap.
func (p *RetryPolicy) MaxDelay() time.Duration { return p.maxDelay }

// Multiplier returns the backoff multiplier.
func (p *RetryPolicy) Multiplier() float64 { return p.multiplier }

// Jitter reports whether delays are randomised.
func (p *RetryPolicy) Jitter() bool { return p.jitter }

// NextDelay returns the wait after the given failed attempt (1-indexed):
// min(maxDelay, strategy delay), drawn from [0, delay] when jitter is on.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := p.strategy.Delay(attempt)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}

	if delay < 0 {
		delay = 0
	}

	if p.jitter && delay > 0 {
		n := int64(delay)
		if n < math.MaxInt64 {
			n++
		}

		delay = time.Duration(rand.Int64N(n))
	}

	return delay
}

// IsRetryable applies the retryable predicate alone, without looking at the
// attempt budget.
func (p *RetryPolicy) IsRetryable(err error) bool {
	return err != nil && p.retryable(err)
}

// ShouldRetry reports whether another attempt should follow the given failed
// attempt.
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.maxAttempts {
		return false
	}

	return p.IsRetryable(err)
}
