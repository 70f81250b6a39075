// Package metrics exposes Prometheus collectors for the wallet and gig
// services. The /metrics endpoint serves the default registry via promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements the metrics interfaces of the wallet and gig services
// on top of the default Prometheus registry.
type Collector struct {
	transactionsTotal *prometheus.CounterVec
	transactionAmount *prometheus.CounterVec
	gigEventsTotal    *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		transactionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delu_transactions_total",
			Help: "Number of ledger transactions by type.",
		}, []string{"type"}),
		transactionAmount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delu_transaction_amount_total",
			Help: "Total amount moved through the ledger by type.",
		}, []string{"type"}),
		gigEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delu_gig_events_total",
			Help: "Gig lifecycle events (created, accepted, completed, expired).",
		}, []string{"event"}),
		errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delu_service_errors_total",
			Help: "Service operation failures by operation.",
		}, []string{"operation"}),
		operationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delu_operation_duration_seconds",
			Help:    "Service operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (c *Collector) RecordTransaction(txType string, amount float64) {
	c.transactionsTotal.WithLabelValues(txType).Inc()
	c.transactionAmount.WithLabelValues(txType).Add(amount)
}

func (c *Collector) RecordGigEvent(event string) {
	c.gigEventsTotal.WithLabelValues(event).Inc()
}

// RecordError counts failures per operation. The error text is deliberately
// not a label: free-form messages would blow up cardinality.
func (c *Collector) RecordError(operation, errType string) {
	c.errorsTotal.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordOperationDuration(operation string, duration time.Duration) {
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
