// Package metrics exposes Prometheus collectors (grounded on
// matst80-showoff's use of github.com/prometheus/client_golang) for the
// gateway's session lifecycle. Metrics are observability, not auditing
// or recording of session content.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric the gateway registers.
type Collectors struct {
	ActiveSessions   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionFailures  *prometheus.CounterVec
	HandshakeSeconds prometheus.Histogram
	BytesRelayed     *prometheus.CounterVec
	IntakeRejected   prometheus.Counter
}

// New registers and returns the gateway's collectors against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "guacgw",
			Name:      "active_sessions",
			Help:      "Number of sessions currently in the relaying phase.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guacgw",
			Name:      "sessions_total",
			Help:      "Total number of sessions that reached the relaying phase.",
		}),
		SessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guacgw",
			Name:      "session_failures_total",
			Help:      "Total number of sessions that ended with an error, labeled by kind.",
		}, []string{"kind"}),
		HandshakeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guacgw",
			Name:      "handshake_seconds",
			Help:      "Time spent in the guacd handshake before reaching the relaying phase.",
			Buckets:   prometheus.DefBuckets,
		}),
		BytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guacgw",
			Name:      "bytes_relayed_total",
			Help:      "Total bytes relayed, labeled by direction.",
		}, []string{"direction"}),
		IntakeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guacgw",
			Name:      "intake_rejected_total",
			Help:      "Total number of sessions rejected at intake due to backpressure.",
		}),
	}
	reg.MustRegister(
		c.ActiveSessions,
		c.SessionsTotal,
		c.SessionFailures,
		c.HandshakeSeconds,
		c.BytesRelayed,
		c.IntakeRejected,
	)
	return c
}

// Noop returns a Collectors registered against a fresh, private
// registry, for use in tests and anywhere metrics should be exercised
// without touching the process-global registry.
func Noop() *Collectors {
	return New(prometheus.NewRegistry())
}
