package instrument

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nosqlite"

// Metrics records statement counts and latencies in Prometheus.
type Metrics struct {
	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the statement collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "statements_total",
				Help:      "Total number of SQL statements by kind and status",
			},
			[]string{"statement", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "statement_duration_seconds",
				Help:      "Duration of SQL statements in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"statement"},
		),
	}
}

func (m *Metrics) Observe(statement, status string, elapsed time.Duration) {
	m.statements.WithLabelValues(statement, status).Inc()
	m.duration.WithLabelValues(statement).Observe(elapsed.Seconds())
}
