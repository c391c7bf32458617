package diagnostics

import (
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink records attempt events as Prometheus metrics.
type MetricsSink struct {
	// Attempts counts attempts per operation and outcome
	Attempts *prometheus.CounterVec
	// AttemptDuration tracks how long single attempts take
	AttemptDuration *prometheus.HistogramVec
	// ReauthRetries counts attempts made right after a token refresh
	ReauthRetries *prometheus.CounterVec
}

// NewMetricsSink registers the sink's collectors with reg.
// Use prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)

	return &MetricsSink{
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callguard_attempts_total",
				Help: "Total number of remote call attempts",
			},
			[]string{"operation", "outcome"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callguard_attempt_duration_seconds",
				Help:    "Remote call attempt latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ReauthRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callguard_reauth_retries_total",
				Help: "Total number of attempts made after a credential refresh",
			},
			[]string{"operation"},
		),
	}
}

func (m *MetricsSink) Emit(event retry.Event) {
	outcome := "success"
	if !event.Succeeded {
		outcome = event.Classification.String()
	}

	m.Attempts.WithLabelValues(event.Operation, outcome).Inc()
	m.AttemptDuration.WithLabelValues(event.Operation).Observe(event.Duration.Seconds())
	if event.Refreshed {
		m.ReauthRetries.WithLabelValues(event.Operation).Inc()
	}
}
