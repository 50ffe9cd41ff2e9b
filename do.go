package chcommon

import "context"

// Do is a convenience wrapper around [Execute] for callers that only need
// the value and error.
//
//nolint:ireturn // generic type parameter T, not an interface
func Do[T any](
	ctx context.Context,
	policy *RetryPolicy,
	op Operation[T],
	opts ...ExecuteOption,
) (T, error) {
	return Execute(ctx, policy, op, opts...).Get()
}
