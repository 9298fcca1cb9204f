package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published      prometheus.Counter
	PublishErrors  prometheus.Counter
	BreakerOpen    prometheus.Gauge
	BatchDurations prometheus.Histogram
}

// NewMetrics registers relay metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "cityledger_events_published_total",
			Help: "Total number of ledger events relayed to subscribers",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "cityledger_events_publish_errors_total",
			Help: "Total number of failed relay batches",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "cityledger_events_relay_breaker_open",
			Help: "Relay circuit breaker state (0=closed, 1=open)",
		}),
		BatchDurations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cityledger_events_relay_batch_seconds",
			Help:    "Duration of a relay batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
