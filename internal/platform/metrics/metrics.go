package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for ledger transactions.
type Metrics struct {
	Transactions        *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	PropositionsPlaced  prometheus.Counter
	ParticipantsAdded   *prometheus.CounterVec
	HTTPLatency         *prometheus.HistogramVec
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityledger_transactions_total",
			Help: "Total number of ledger transactions by type and outcome",
		}, []string{"transaction", "outcome"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cityledger_transaction_duration_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"transaction"}),
		PropositionsPlaced: f.NewCounter(prometheus.CounterOpts{
			Name: "cityledger_propositions_placed_total",
			Help: "Total number of propositions placed",
		}),
		ParticipantsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityledger_participants_registered_total",
			Help: "Total number of participants registered by type",
		}, []string{"type"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cityledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ObserveTransaction records one transaction outcome ("ok" or an error code).
func (m *Metrics) ObserveTransaction(name, outcome string, seconds float64) {
	m.Transactions.WithLabelValues(name, outcome).Inc()
	m.TransactionDuration.WithLabelValues(name).Observe(seconds)
}

func (m *Metrics) IncrementPropositionsPlaced() {
	m.PropositionsPlaced.Inc()
}

func (m *Metrics) IncrementParticipants(kind string) {
	m.ParticipantsAdded.WithLabelValues(kind).Inc()
}

// ObserveHTTP records request latency for a route pattern.
func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	m.HTTPLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
