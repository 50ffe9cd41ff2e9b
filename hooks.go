package chcommon

import "time"

// CallAttempt describes one finished attempt of an [Execute] call.
type CallAttempt struct {
	// Err is nil for a successful attempt.
	Err error
	// Kind is the classified kind of Err, empty on success.
	Kind ErrorKind
	// Number is 1-indexed.
	Number int
	// Elapsed is the duration of this attempt alone.
	Elapsed time.Duration
	// Delay is the wait before the next attempt, zero when none follows.
	Delay time.Duration
	// Retryable is the policy verdict for Err.
	Retryable bool
}

// Hooks holds optional callbacks for the lifecycle of an [Execute] call.
// All fields may be nil. A Hooks value must not be mutated once passed to
// Execute: emit methods read the fields without synchronisation.
//
// Pattern: Observer — the core reports what happened and never logs on its
// own; see the observe package for slog and Prometheus observers.
type Hooks struct {
	// OnAttempt is called after every attempt, successful or not.
	OnAttempt func(a CallAttempt)
	// OnWait is called before sleeping between attempts.
	OnWait func(attempt int, delay time.Duration)
	// OnFatal is called when a non-retryable error ends the call.
	OnFatal func(attempts int, err error)
	// OnExhausted is called when all attempts were used.
	OnExhausted func(attempts int, err error)
	// OnCancelled is called when the context or the whole-call timeout ends
	// the call.
	OnCancelled func(attempts int, cause error)
}

func (h *Hooks) emitAttempt(a CallAttempt) {
	if h != nil && h.OnAttempt != nil {
		h.OnAttempt(a)
	}
}

func (h *Hooks) emitWait(attempt int, delay time.Duration) {
	if h != nil && h.OnWait != nil {
		h.OnWait(attempt, delay)
	}
}

func (h *Hooks) emitFatal(attempts int, err error) {
	if h != nil && h.OnFatal != nil {
		h.OnFatal(attempts, err)
	}
}

func (h *Hooks) emitExhausted(attempts int, err error) {
	if h != nil && h.OnExhausted != nil {
		h.OnExhausted(attempts, err)
	}
}

func (h *Hooks) emitCancelled(attempts int, cause error) {
	if h != nil && h.OnCancelled != nil {
		h.OnCancelled(attempts, cause)
	}
}

// Compose returns hooks that call every non-nil hooks value in order.
func Compose(hooks ...*Hooks) *Hooks {
	var set []*Hooks

	for _, h := range hooks {
		if h != nil {
			set = append(set, h)
		}
	}

	switch len(set) {
	case 0:
		return &Hooks{}
	case 1:
		return set[0]
	}

	return &Hooks{
		OnAttempt: func(a CallAttempt) {
			for _, h := range set {
				h.emitAttempt(a)
			}
		},
		OnWait: func(attempt int, delay time.Duration) {
			for _, h := range set {
				h.emitWait(attempt, delay)
			}
		},
		OnFatal: func(attempts int, err error) {
			for _, h := range set {
				h.emitFatal(attempts, err)
			}
		},
		OnExhausted: func(attempts int, err error) {
			for _, h := range set {
				h.emitExhausted(attempts, err)
			}
		},
		OnCancelled: func(attempts int, cause error) {
			for _, h := range set {
				h.emitCancelled(attempts, cause)
			}
		},
	}
}
