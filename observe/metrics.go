package observe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/byte4ever/chcommon"
)

// Result label values of calls_total.
const (
	ResultSuccess   = "success"
	ResultFatal     = "fatal"
	ResultExhausted = "exhausted"
	ResultCancelled = "cancelled"
)

// Metrics records attempts and call outcomes per policy name.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg under namespace:
//
//	<ns>_attempts_total{policy,outcome}
//	<ns>_attempt_duration_seconds{policy}
//	<ns>_calls_total{policy,result}
//
// It panics if the collectors are already registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Attempts by policy and outcome (success or the error kind).",
			},
			[]string{"policy", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of single attempts in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"policy"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Finished calls by policy and result.",
			},
			[]string{"policy", "result"},
		),
	}

	reg.MustRegister(m.attempts, m.duration, m.calls)

	return m
}

// Hooks returns hooks recording into m under the given policy label.
// Successful calls are counted from the final successful attempt.
func (m *Metrics) Hooks(policy string) *chcommon.Hooks {
	duration := m.duration.WithLabelValues(policy)

	return &chcommon.Hooks{
		OnAttempt: func(a chcommon.CallAttempt) {
			duration.Observe(a.Elapsed.Seconds())

			if a.Err == nil {
				m.attempts.WithLabelValues(policy, ResultSuccess).Inc()
				m.calls.WithLabelValues(policy, ResultSuccess).Inc()

				return
			}

			m.attempts.WithLabelValues(policy, string(a.Kind)).Inc()
		},
		OnFatal: func(int, error) {
			m.calls.WithLabelValues(policy, ResultFatal).Inc()
		},
		OnExhausted: func(int, error) {
			m.calls.WithLabelValues(policy, ResultExhausted).Inc()
		},
		OnCancelled: func(int, error) {
			m.calls.WithLabelValues(policy, ResultCancelled).Inc()
		},
	}
}
