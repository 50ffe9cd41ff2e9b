package chcommon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

// recorder turns hook calls into a flat event log.
type recorder struct {
	events []string
}

func (r *recorder) hooks() *Hooks {
	return &Hooks{
		OnAttempt: func(a CallAttempt) {
			r.events = append(r.events, fmt.Sprintf("attempt %d %s", a.Number, a.Kind))
		},
		OnWait: func(attempt int, delay time.Duration) {
			r.events = append(r.events, fmt.Sprintf("wait %d", attempt))
		},
		OnFatal: func(attempts int, err error) {
			r.events = append(r.events, fmt.Sprintf("fatal %d", attempts))
		},
		OnExhausted: func(attempts int, err error) {
			r.events = append(r.events, fmt.Sprintf("exhausted %d", attempts))
		},
		OnCancelled: func(attempts int, cause error) {
			r.events = append(r.events, fmt.Sprintf("cancelled %d", attempts))
		},
	}
}

func TestConfiguredPolicyEndToEnd(t *testing.T) {
	reg, err := LoadConfig("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	policy := reg.PolicyOr("clickhouse", NoRetry())
	clk := &immediateClock{}

	var first, second recorder

	opts := append(reg.ExecuteOptions("clickhouse"),
		WithClock(clk),
		WithHooks(Compose(first.hooks(), second.hooks())),
	)

	errs := []error{
		Classify(KindConnection, errors.New("connection refused")),
		Classify(KindConnection, errors.New("connection reset")),
		Classify(KindServer, errors.New("Code: 60. Table does not exist")),
	}

	res := Execute(context.Background(), policy, func(context.Context) (string, error) {
		err := errs[0]
		errs = errs[1:]
		return "", err
	}, opts...)

	if res.Outcome != FailedFatal || res.Attempts != 3 {
		t.Fatalf("got (%v, %d attempts), want (failed-fatal, 3)", res.Outcome, res.Attempts)
	}
	if KindOf(res.Err) != KindServer {
		t.Fatalf("KindOf(Err) = %q, want server", KindOf(res.Err))
	}

	want := []string{
		"attempt 1 connection", "wait 1",
		"attempt 2 connection", "wait 2",
		"attempt 3 server", "fatal 3",
	}
	if !slices.Equal(first.events, want) {
		t.Fatalf("events = %q, want %q", first.events, want)
	}
	if !slices.Equal(second.events, want) {
		t.Fatal("composed hooks saw different events")
	}

	for i, d := range clk.getDurations() {
		if d > policy.MaxDelay() {
			t.Fatalf("wait %d = %v exceeds max delay %v", i+1, d, policy.MaxDelay())
		}
	}
}

func TestConfiguredTimeoutCancelsCall(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slow", mustPolicy(t, MaxAttempts(3)), 20*time.Millisecond)

	var rec recorder

	opts := append(reg.ExecuteOptions("slow"), WithHooks(rec.hooks()))

	res := Execute(context.Background(), reg.PolicyOr("slow", nil), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, opts...)

	if res.Outcome != Cancelled {
		t.Fatalf("Outcome = %v, want cancelled", res.Outcome)
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("Err = %v, want ErrTimeout in chain", res.Err)
	}

	var ce *CancelledError
	if !errors.As(res.Err, &ce) {
		t.Fatalf("Err = %T, want *CancelledError", res.Err)
	}
	if n := len(rec.events); n == 0 || rec.events[n-1] != "cancelled 1" {
		t.Fatalf("events = %q, want to end with cancelled 1", rec.events)
	}
}
