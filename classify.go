package chcommon

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Verdict is the retry decision for an [ErrorKind].
type Verdict bool

const (
	// Fatal errors end the call immediately.
	Fatal Verdict = false
	// Retry errors are retried while attempts remain.
	Retry Verdict = true
)

// ClassificationTable maps error kinds to retry verdicts. Kinds absent from
// the table are fatal.
//
// Pattern: Table-Driven Strategy — the retry decision is data, so it can be
// loaded from configuration and reasoned about without reading code.
type ClassificationTable map[ErrorKind]Verdict

// DefaultClassification retries transport-level and server-side failures and
// treats malformed requests and input errors as fatal.
func DefaultClassification() ClassificationTable {
	return ClassificationTable{
		KindTimeout:    Retry,
		KindConnection: Retry,
		KindServer:     Retry,
		KindThrottled:  Retry,
		KindTransient:  Retry,
		KindClient:     Fatal,
		KindParse:      Fatal,
		KindTemplate:   Fatal,
		KindRender:     Fatal,
		KindPermanent:  Fatal,
		KindCancelled:  Fatal,
		KindUnknown:    Fatal,
	}
}

// RetryOn builds a table that retries only the given kinds.
func RetryOn(kinds ...ErrorKind) ClassificationTable {
	t := make(ClassificationTable, len(kinds))
	for _, k := range kinds {
		t[k] = Retry
	}

	return t
}

// Retryable reports whether err is retryable according to the table. A nil
// error is never retryable.
func (t ClassificationTable) Retryable(err error) bool {
	if err == nil {
		return false
	}

	return bool(t[KindOf(err)])
}

// Clone returns an independent copy of the table.
func (t ClassificationTable) Clone() ClassificationTable {
	c := make(ClassificationTable, len(t))
	for k, v := range t {
		c[k] = v
	}

	return c
}

// kinder is implemented by errors that declare their own kind.
type kinder interface {
	ErrorKind() string
}

// KindOf returns the kind of err. The first error in the chain that exposes
// an ErrorKind() string method wins; otherwise well-known transport failures
// are recognised and everything else is [KindUnknown].
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var k kinder
	if errors.As(err, &k) {
		return ErrorKind(k.ErrorKind())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnection
	}

	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindConnection
	}

	return KindUnknown
}
