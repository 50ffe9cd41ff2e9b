package chcommon

import "time"

// Pattern: Factory Function — each preset is a ready-made policy for a
// common call site.

// NoRetry returns a policy that attempts exactly once.
func NoRetry() *RetryPolicy {
	return singleAttempt
}

// StandardHTTP returns a policy for ordinary HTTP APIs: 3 attempts,
// exponential backoff from 100ms doubling up to 10s with jitter, retrying
// timeouts, connection failures, 5xx and 429.
func StandardHTTP() *RetryPolicy {
	return MustRetryPolicy(
		MaxAttempts(3),
		BaseDelay(100*time.Millisecond),
		Multiplier(2),
		MaxDelay(10*time.Second),
		Jitter(true),
	)
}

// ClickHouseQuery returns the policy used for ClickHouse HTTP queries:
// 5 attempts, random exponential backoff from 500ms capped at 5s, retrying
// connection failures only. Server errors are query errors and are not
// retried.
func ClickHouseQuery() *RetryPolicy {
	return MustRetryPolicy(
		MaxAttempts(5),
		BaseDelay(500*time.Millisecond),
		Multiplier(2),
		MaxDelay(5*time.Second),
		Jitter(true),
		WithClassification(RetryOn(KindConnection)),
	)
}
