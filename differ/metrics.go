package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors a StateDiffer reports to.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	mismatches   *prometheus.CounterVec
}

// NewMetrics creates the differ collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simplestamm",
			Subsystem: "diff",
			Name:      "duration_seconds",
			Help:      "Time spent comparing a predicted observation with the chain.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}, []string{}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplestamm",
			Subsystem: "diff",
			Name:      "mismatches_total",
			Help:      "Fields whose observed value differed from the prediction.",
		}, []string{"field"}),
	}
	reg.MustRegister(m.diffDuration, m.mismatches)
	return m
}
