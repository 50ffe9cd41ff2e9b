package chcommon

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// ErrorKind names a class of failure. The retry decision is a lookup of the
// kind in a [ClassificationTable], never a type switch on the error itself,
// so any error can take part by exposing an ErrorKind() string method.
type ErrorKind string

// Known error kinds.
const (
	KindUnknown    ErrorKind = "unknown"
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindServer     ErrorKind = "server"
	KindThrottled  ErrorKind = "throttled"
	KindClient     ErrorKind = "client"
	KindParse      ErrorKind = "parse"
	KindTemplate   ErrorKind = "template"
	KindRender     ErrorKind = "render"
	KindTransient  ErrorKind = "transient"
	KindPermanent  ErrorKind = "permanent"
	KindCancelled  ErrorKind = "cancelled"
)

// ---------------------------------------------------------------------------
// Sentinels
// ---------------------------------------------------------------------------

// coreError is the concrete type backing all sentinel errors.
type coreError string

func (e coreError) Error() string { return string(e) }

// Sentinel errors produced by the resilient client itself.
var (
	// ErrRetriesExhausted matches every [RetryExhaustedError].
	ErrRetriesExhausted error = coreError("retries exhausted")
	// ErrCancelled matches every [CancelledError].
	ErrCancelled error = coreError("cancelled")
	// ErrTimeout is the cause of a [CancelledError] raised by the whole-call
	// timeout configured with [WithTimeout].
	ErrTimeout error = coreError("timeout")
	// ErrInvalidPolicy is returned by [NewRetryPolicy] for out-of-range
	// settings.
	ErrInvalidPolicy error = coreError("invalid retry policy")
)

// ---------------------------------------------------------------------------
// OperationError — caller-defined failure with an explicit kind
// ---------------------------------------------------------------------------

// OperationError attaches an [ErrorKind] to an error returned by a wrapped
// operation.
type OperationError struct {
	Err  error
	Kind ErrorKind
}

func (e *OperationError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *OperationError) Unwrap() error { return e.Err }

// ErrorKind reports the attached kind.
func (e *OperationError) ErrorKind() string { return string(e.Kind) }

// Classify wraps err with the given kind. Returns nil if err is nil.
func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}

	return &OperationError{Kind: kind, Err: err}
}

// Transient marks err as retriable. Returns nil if err is nil.
func Transient(err error) error { return Classify(KindTransient, err) }

// Permanent marks err as non-retriable. Returns nil if err is nil.
func Permanent(err error) error { return Classify(KindPermanent, err) }

// IsPermanent reports whether err was explicitly marked with [Permanent].
func IsPermanent(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Kind == KindPermanent
}

// ---------------------------------------------------------------------------
// Terminal failures of Execute
// ---------------------------------------------------------------------------

// RetryExhaustedError is returned when every permitted attempt failed with a
// retryable error.
type RetryExhaustedError struct {
	// Last is the error returned by the final attempt.
	Last     error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// Is matches [ErrRetriesExhausted].
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// CancelledError is returned when the caller's context is done, or the
// whole-call timeout fires, before the call reached another terminal state.
type CancelledError struct {
	// Cause is context.Canceled, context.DeadlineExceeded, [ErrTimeout] or
	// the cause attached to the caller's context.
	Cause error
	// Last is the most recent attempt error, nil if none failed yet.
	Last     error
	Attempts int
}

func (e *CancelledError) Error() string {
	msg := fmt.Sprintf("%s after %d attempts: %v", ErrCancelled, e.Attempts, e.Cause)
	if e.Last != nil {
		msg += " (last error: " + e.Last.Error() + ")"
	}

	return msg
}

// Unwrap exposes the cancellation cause.
func (e *CancelledError) Unwrap() error { return e.Cause }

// Is matches [ErrCancelled].
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// ErrorKind reports [KindCancelled].
func (*CancelledError) ErrorKind() string { return string(KindCancelled) }
