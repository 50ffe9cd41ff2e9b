// Package chcommon is the shared core of the ClickHouse fleet tooling.
//
// The root package holds the resilient remote-call layer: [RetryPolicy]
// decides attempt budgets, delays and which failures are retryable through an
// explicit [ClassificationTable], and [Execute] runs a fallible operation
// under a policy, reporting every attempt through [Hooks] and ending in a
// [CallResult]. Sub-packages provide the structured data codec (document),
// the template renderer (render), the HTTP adapter (httpx), ClickHouse client
// and config helpers (clickhouse) and slog/Prometheus observers (observe).
package chcommon
