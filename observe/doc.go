// Package observe turns [chcommon.Hooks] into structured logs and
// Prometheus metrics.
//
//	m := observe.NewMetrics(prometheus.DefaultRegisterer, "chtools")
//	hooks := chcommon.Compose(observe.Logger(slog.Default(), "query"), m.Hooks("query"))
//	res := chcommon.Execute(ctx, policy, op, chcommon.WithHooks(hooks))
package observe
