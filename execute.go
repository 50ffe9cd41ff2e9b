package chcommon

import (
	"context"
	"errors"
	"io"
	"time"
)

// Operation is the fallible action wrapped by [Execute]. It should honour
// ctx, but Execute does not rely on it when a whole-call timeout is set.
type Operation[T any] func(ctx context.Context) (T, error)

// Outcome is the terminal state of an [Execute] call.
type Outcome int

// Terminal states. The zero value never appears in a returned CallResult.
const (
	Succeeded Outcome = iota + 1
	FailedFatal
	FailedExhausted
	Cancelled
)

// String returns the outcome name used in logs and metric labels.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case FailedFatal:
		return "fatal"
	case FailedExhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CallResult is the terminal outcome of [Execute].
type CallResult[T any] struct {
	// Value is the operation's result when Outcome is Succeeded.
	Value T
	// Err is nil on success, the original error for FailedFatal, a
	// *RetryExhaustedError for FailedExhausted and a *CancelledError for
	// Cancelled.
	Err      error
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
}

// OK reports whether the call succeeded.
func (r CallResult[T]) OK() bool { return r.Outcome == Succeeded }

// Get returns the value and error pair.
//
//nolint:ireturn // generic type parameter T, not an interface
func (r CallResult[T]) Get() (T, error) { return r.Value, r.Err }

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type executeConfig struct {
	hooks   *Hooks
	clock   Clock
	timeout time.Duration
	release func(v any)
}

// ExecuteOption configures a single [Execute] call.
type ExecuteOption func(*executeConfig)

// WithHooks observes the call through h.
func WithHooks(h *Hooks) ExecuteOption {
	return func(c *executeConfig) { c.hooks = h }
}

// WithClock replaces the clock used for elapsed time and waits.
func WithClock(clk Clock) ExecuteOption {
	return func(c *executeConfig) { c.clock = clk }
}

// WithTimeout bounds the whole call, waits and attempts included. When it
// fires the in-flight attempt is abandoned and the call ends Cancelled with
// cause [ErrTimeout].
func WithTimeout(d time.Duration) ExecuteOption {
	return func(c *executeConfig) { c.timeout = d }
}

// WithRelease sets the cleanup applied to the value of an attempt abandoned
// by [WithTimeout] that still succeeds after the call has returned. By
// default values implementing [io.Closer] are closed.
func WithRelease(fn func(v any)) ExecuteOption {
	return func(c *executeConfig) { c.release = fn }
}

func closeValue(v any) {
	if c, ok := v.(io.Closer); ok && c != nil {
		_ = c.Close()
	}
}

//nolint:gochecknoglobals // immutable single-attempt policy
var singleAttempt = MustRetryPolicy(MaxAttempts(1))

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

// Pattern: Retry with Backoff — Idle → Attempting → {Succeeded |
// Waiting → Attempting | FailedFatal | FailedExhausted | Cancelled}.

// Execute runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up, waiting [RetryPolicy.NextDelay] between
// attempts. A nil policy allows a single attempt.
//
// Cancellation of ctx is honoured before each attempt and during waits. A
// fatal error is returned unmodified after the attempt that produced it.
func Execute[T any](
	ctx context.Context,
	policy *RetryPolicy,
	op Operation[T],
	opts ...ExecuteOption,
) CallResult[T] {
	cfg := executeConfig{clock: RealClock{}, release: closeValue}
	for _, opt := range opts {
		opt(&cfg)
	}

	if policy == nil {
		policy = singleAttempt
	}

	preempt := false

	if cfg.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeoutCause(ctx, cfg.timeout, ErrTimeout)
		defer cancel()

		preempt = true
	}

	start := cfg.clock.Now()

	var lastErr error

	cancelled := func(attempts int) CallResult[T] {
		cause := context.Cause(ctx)
		cfg.hooks.emitCancelled(attempts, cause)

		return CallResult[T]{
			Err:      &CancelledError{Cause: cause, Last: lastErr, Attempts: attempts},
			Outcome:  Cancelled,
			Attempts: attempts,
			Elapsed:  cfg.clock.Since(start),
		}
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return cancelled(attempt - 1)
		}

		began := cfg.clock.Now()
		val, err, abandoned := runAttempt(ctx, op, preempt, cfg.release)
		rec := CallAttempt{Number: attempt, Elapsed: cfg.clock.Since(began), Err: err}

		if abandoned {
			rec.Err = context.Cause(ctx)
			rec.Kind = KindCancelled
			cfg.hooks.emitAttempt(rec)

			return cancelled(attempt)
		}

		if err == nil {
			cfg.hooks.emitAttempt(rec)

			return CallResult[T]{
				Value:    val,
				Outcome:  Succeeded,
				Attempts: attempt,
				Elapsed:  cfg.clock.Since(start),
			}
		}

		lastErr = err
		rec.Kind = KindOf(err)
		rec.Retryable = policy.IsRetryable(err)

		retry := policy.ShouldRetry(attempt, err)

		// A call cancelled during the attempt ends as cancelled when it would
		// retry, or when the attempt failed with the cancellation itself.
		if ctx.Err() != nil && (retry || causedByCancel(ctx, err)) {
			cfg.hooks.emitAttempt(rec)
			return cancelled(attempt)
		}

		if !retry {
			cfg.hooks.emitAttempt(rec)

			if !rec.Retryable {
				cfg.hooks.emitFatal(attempt, err)

				return CallResult[T]{
					Err:      err,
					Outcome:  FailedFatal,
					Attempts: attempt,
					Elapsed:  cfg.clock.Since(start),
				}
			}

			cfg.hooks.emitExhausted(attempt, err)

			return CallResult[T]{
				Err:      &RetryExhaustedError{Last: err, Attempts: attempt},
				Outcome:  FailedExhausted,
				Attempts: attempt,
				Elapsed:  cfg.clock.Since(start),
			}
		}

		delay := policy.NextDelay(attempt)
		rec.Delay = delay
		cfg.hooks.emitAttempt(rec)
		cfg.hooks.emitWait(attempt, delay)

		if delay <= 0 {
			continue
		}

		timer := cfg.clock.NewTimer(delay)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			return cancelled(attempt)
		}
	}
}

func causedByCancel(ctx context.Context, err error) bool {
	return errors.Is(err, ctx.Err()) || errors.Is(err, context.Cause(ctx))
}

// runAttempt calls op. With preempt set, op runs on its own goroutine and is
// abandoned as soon as ctx is done; abandoned is then true, and a value the
// goroutine still produces is handed to release.
//
//nolint:ireturn // generic type parameter T, not an interface
func runAttempt[T any](
	ctx context.Context,
	op Operation[T],
	preempt bool,
	release func(v any),
) (val T, err error, abandoned bool) {
	if !preempt {
		val, err = op(ctx)
		return val, err, false
	}

	type result struct {
		val T
		err error
	}

	ch := make(chan result, 1)

	go func() {
		v, e := op(ctx)
		ch <- result{val: v, err: e}
	}()

	select {
	case r := <-ch:
		return r.val, r.err, false
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && release != nil {
				release(r.val)
			}
		}()

		return val, nil, true
	}
}
