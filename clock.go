package chcommon

import "time"

// Clock abstracts the time source of [Execute] so the wait between attempts
// can be observed and driven by tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// NewTimer returns a [Timer] that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of [time.Timer] used by the retry wait.
type Timer interface {
	// C delivers the firing time.
	C() <-chan time.Time
	// Stop prevents the timer from firing and reports whether it was still
	// pending.
	Stop() bool
}

// RealClock is the [Clock] backed by the time package. The zero value is
// ready to use and holds no state.
type RealClock struct{}

// Now calls [time.Now].
func (RealClock) Now() time.Time { return time.Now() }

// Since calls [time.Since].
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTimer wraps [time.NewTimer].
func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
