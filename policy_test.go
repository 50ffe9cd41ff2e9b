package chcommon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Construction and validation
// ---------------------------------------------------------------------------

func TestNewRetryPolicyDefaults(t *testing.T) {
	p, err := NewRetryPolicy()
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}
	if p.MaxAttempts() != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts() = %d, want %d", p.MaxAttempts(), DefaultMaxAttempts)
	}
	if p.BaseDelay() != DefaultBaseDelay || p.MaxDelay() != DefaultMaxDelay {
		t.Fatalf("delays = (%v, %v), want defaults", p.BaseDelay(), p.MaxDelay())
	}
	if p.Multiplier() != DefaultMultiplier || p.Jitter() {
		t.Fatalf("multiplier/jitter = (%g, %v), want (2, false)", p.Multiplier(), p.Jitter())
	}
}

func TestNewRetryPolicyRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		opts []PolicyOption
	}{
		{"zero attempts", []PolicyOption{MaxAttempts(0)}},
		{"negative attempts", []PolicyOption{MaxAttempts(-2)}},
		{"multiplier below one", []PolicyOption{Multiplier(0.5)}},
		{"negative base", []PolicyOption{BaseDelay(-time.Second)}},
		{"cap below base", []PolicyOption{BaseDelay(time.Second), MaxDelay(time.Millisecond)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetryPolicy(tt.opts...)
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestMaxDelayAloneLowersDefaultBase(t *testing.T) {
	p, err := NewRetryPolicy(MaxDelay(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}
	if p.BaseDelay() != 50*time.Millisecond {
		t.Fatalf("BaseDelay() = %v, want lowered to 50ms", p.BaseDelay())
	}
	if got := p.NextDelay(1); got != 50*time.Millisecond {
		t.Fatalf("NextDelay(1) = %v, want 50ms", got)
	}

	if _, err := NewRetryPolicy(MaxDelay(-time.Second)); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("negative cap error = %v, want ErrInvalidPolicy", err)
	}
}

func TestMustRetryPolicyPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustRetryPolicy did not panic")
		}
	}()

	MustRetryPolicy(MaxAttempts(0))
}

// ---------------------------------------------------------------------------
// ShouldRetry
// ---------------------------------------------------------------------------

func TestShouldRetryStopsAtMaxAttempts(t *testing.T) {
	p := MustRetryPolicy(MaxAttempts(3))
	err := Transient(errors.New("x"))

	for attempt, want := range map[int]bool{1: true, 2: true, 3: false, 4: false} {
		if got := p.ShouldRetry(attempt, err); got != want {
			t.Fatalf("ShouldRetry(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestShouldRetryDelegatesToPredicate(t *testing.T) {
	special := errors.New("special")
	p := MustRetryPolicy(
		MaxAttempts(10),
		RetryIf(func(err error) bool { return errors.Is(err, special) }),
	)

	if !p.ShouldRetry(1, fmt.Errorf("wrapped: %w", special)) {
		t.Fatal("ShouldRetry(special) = false, want true")
	}
	if p.ShouldRetry(1, Transient(errors.New("other"))) {
		t.Fatal("ShouldRetry(other) = true, want false")
	}
	if p.ShouldRetry(1, nil) {
		t.Fatal("ShouldRetry(nil) = true, want false")
	}
}

func TestWithClassificationCopiesTable(t *testing.T) {
	table := RetryOn(KindServer)
	p := MustRetryPolicy(WithClassification(table))

	table[KindClient] = Retry

	if p.IsRetryable(Classify(KindClient, errors.New("400"))) {
		t.Fatal("policy observed mutation of the table it was built from")
	}
}

// ---------------------------------------------------------------------------
// Classification table
// ---------------------------------------------------------------------------

type kindedError struct{ kind string }

func (e kindedError) Error() string     { return "kinded " + e.kind }
func (e kindedError) ErrorKind() string { return e.kind }

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{errors.New("plain"), KindUnknown},
		{Transient(errors.New("t")), KindTransient},
		{Permanent(errors.New("p")), KindPermanent},
		{Classify(KindServer, errors.New("500")), KindServer},
		{fmt.Errorf("outer: %w", kindedError{kind: "parse"}), KindParse},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindCancelled},
		{timeoutNetError{}, KindTimeout},
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindConnection},
		{fmt.Errorf("read: %w", syscall.ECONNRESET), KindConnection},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDefaultClassificationVerdicts(t *testing.T) {
	table := DefaultClassification()

	retryable := []ErrorKind{KindTimeout, KindConnection, KindServer, KindThrottled, KindTransient}
	fatal := []ErrorKind{KindClient, KindParse, KindTemplate, KindRender, KindPermanent, KindUnknown, KindCancelled}

	for _, k := range retryable {
		if !table.Retryable(Classify(k, errors.New("x"))) {
			t.Fatalf("kind %q: Retryable = false, want true", k)
		}
	}
	for _, k := range fatal {
		if table.Retryable(Classify(k, errors.New("x"))) {
			t.Fatalf("kind %q: Retryable = true, want false", k)
		}
	}
	if table.Retryable(nil) {
		t.Fatal("Retryable(nil) = true")
	}
}

func TestRetryOnOnlyListedKinds(t *testing.T) {
	table := RetryOn(KindConnection)

	if !table.Retryable(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}) {
		t.Fatal("connection refused should be retryable")
	}
	if table.Retryable(Classify(KindServer, errors.New("500"))) {
		t.Fatal("server error should be fatal under RetryOn(connection)")
	}
}

func TestClickHouseQueryPreset(t *testing.T) {
	p := ClickHouseQuery()
	if p.MaxAttempts() != 5 || p.MaxDelay() != 5*time.Second || !p.Jitter() {
		t.Fatalf("preset = (%d, %v, %v)", p.MaxAttempts(), p.MaxDelay(), p.Jitter())
	}
	if p.IsRetryable(Classify(KindServer, errors.New("500"))) {
		t.Fatal("ClickHouseQuery must not retry server errors")
	}
	if NoRetry().MaxAttempts() != 1 {
		t.Fatal("NoRetry().MaxAttempts() != 1")
	}
	if StandardHTTP().MaxAttempts() != 3 {
		t.Fatal("StandardHTTP().MaxAttempts() != 3")
	}
}
