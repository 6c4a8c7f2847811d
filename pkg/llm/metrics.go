package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for provider calls.
const (
	outcomeSuccess     = "success"
	outcomeError       = "error"
	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"
)

// Metrics records per-provider call counts and latencies.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates provider metrics and registers them on reg. A nil reg
// yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ezra",
			Name:      "provider_requests_total",
			Help:      "Generation attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ezra",
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of generation attempts by provider.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider, outcome).Inc()
	if outcome != outcomeUnavailable {
		m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}
