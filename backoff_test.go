package chcommon

import (
	"math"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Interface compile checks
// ---------------------------------------------------------------------------

func TestBackoffStrategyInterfaceCompliance(t *testing.T) {
	var _ BackoffStrategy = ConstantBackoff(time.Second)
	var _ BackoffStrategy = ExponentialBackoff(time.Second, 2)
	var _ BackoffStrategy = LinearBackoff(time.Second)
	var _ BackoffStrategy = BackoffFunc(func(int) time.Duration { return time.Second })
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(250 * time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := b.Delay(attempt); got != 250*time.Millisecond {
			t.Fatalf("attempt %d: Delay() = %v, want 250ms", attempt, got)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, 2)

	want := []time.Duration{
		100 * time.Millisecond, // 100ms * 2^0
		200 * time.Millisecond, // 100ms * 2^1
		400 * time.Millisecond, // 100ms * 2^2
		800 * time.Millisecond, // 100ms * 2^3
	}

	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Fatalf("attempt %d: Delay() = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponentialBackoffFractionalMultiplier(t *testing.T) {
	b := ExponentialBackoff(time.Second, 1.5)
	if got := b.Delay(3); got != 2250*time.Millisecond {
		t.Fatalf("Delay(3) = %v, want 2.25s", got)
	}
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(200 * time.Millisecond)

	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 600 * time.Millisecond}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Fatalf("attempt %d: Delay() = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponentialBackoffSaturatesInsteadOfOverflowing(t *testing.T) {
	b := ExponentialBackoff(time.Second, 10)
	if got := b.Delay(100); got != time.Duration(math.MaxInt64) {
		t.Fatalf("Delay(100) = %v, want saturation at MaxInt64", got)
	}
}

// ---------------------------------------------------------------------------
// RetryPolicy.NextDelay
// ---------------------------------------------------------------------------

func TestNextDelayMonotonicAndCappedWithoutJitter(t *testing.T) {
	policies := []*RetryPolicy{
		MustRetryPolicy(BaseDelay(100*time.Millisecond), Multiplier(2), MaxDelay(time.Second)),
		MustRetryPolicy(BaseDelay(time.Millisecond), Multiplier(1), MaxDelay(time.Millisecond)),
		MustRetryPolicy(BaseDelay(7*time.Millisecond), Multiplier(3.3), MaxDelay(time.Minute)),
		MustRetryPolicy(BaseDelay(time.Second), Multiplier(1000), MaxDelay(time.Hour)),
	}

	for pi, p := range policies {
		prev := time.Duration(0)
		for n := 1; n <= 200; n++ {
			d := p.NextDelay(n)
			if d < prev {
				t.Fatalf("policy %d: NextDelay(%d) = %v < NextDelay(%d) = %v", pi, n, d, n-1, prev)
			}
			if d > p.MaxDelay() {
				t.Fatalf("policy %d: NextDelay(%d) = %v exceeds cap %v", pi, n, d, p.MaxDelay())
			}
			prev = d
		}
	}
}

func TestNextDelayScenarioValues(t *testing.T) {
	p := MustRetryPolicy(
		MaxAttempts(3),
		BaseDelay(100*time.Millisecond),
		Multiplier(2),
		MaxDelay(time.Second),
	)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}

	for i, w := range want {
		if got := p.NextDelay(i + 1); got != w {
			t.Fatalf("NextDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestNextDelayJitterWithinBounds(t *testing.T) {
	p := MustRetryPolicy(
		BaseDelay(100*time.Millisecond),
		Multiplier(2),
		MaxDelay(time.Second),
		Jitter(true),
	)

	for n := 1; n <= 8; n++ {
		upper := min(100*time.Millisecond<<(n-1), time.Second)
		for range 100 {
			d := p.NextDelay(n)
			if d < 0 || d > upper {
				t.Fatalf("NextDelay(%d) = %v, want within [0, %v]", n, d, upper)
			}
		}
	}
}

func TestNextDelayUsesCustomStrategyUnderCap(t *testing.T) {
	p := MustRetryPolicy(
		Backoff(LinearBackoff(300*time.Millisecond)),
		MaxDelay(time.Second),
	)

	if got := p.NextDelay(2); got != 600*time.Millisecond {
		t.Fatalf("NextDelay(2) = %v, want 600ms", got)
	}
	if got := p.NextDelay(5); got != time.Second {
		t.Fatalf("NextDelay(5) = %v, want capped 1s", got)
	}
}

func TestNextDelayJitterAtLargestCap(t *testing.T) {
	p := MustRetryPolicy(
		BaseDelay(time.Second),
		MaxDelay(math.MaxInt64),
		Jitter(true),
	)

	for range 100 {
		if d := p.NextDelay(80); d < 0 {
			t.Fatalf("NextDelay(80) = %v, want non-negative", d)
		}
	}
}
