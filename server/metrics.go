package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"hyc/hyc-node/disburse"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyc_requests_total",
			Help: "Pool requests by operation and result code",
		},
		[]string{"operation", "code"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyc_request_duration_seconds",
			Help:    "Duration of pool operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyc_active_requests",
			Help: "Number of pool operations in flight",
		},
	)

	TreeLeaves = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hyc_tree_leaves",
			Help: "Leaves inserted per accumulator",
		},
		[]string{"tree"},
	)

	NullifiersSpent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyc_nullifiers_spent",
			Help: "Number of nullifiers recorded",
		},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyc_transfers_total",
			Help: "Transfers processed by the queue workers",
		},
		[]string{"kind", "status"},
	)
)

type MetricTimer struct {
	start     time.Time
	operation string
}

func StartTimer(operation string) *MetricTimer {
	ActiveRequests.Inc()
	return &MetricTimer{start: time.Now(), operation: operation}
}

func (t *MetricTimer) ObserveDuration() {
	RequestDuration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
	RequestsTotal.WithLabelValues(t.operation, "ok").Inc()
	ActiveRequests.Dec()
}

func (t *MetricTimer) ObserveError(code string) {
	RequestDuration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
	RequestsTotal.WithLabelValues(t.operation, code).Inc()
	ActiveRequests.Dec()
}

// RecordTransfer is a disburse.Worker OnResult hook.
func RecordTransfer(t *disburse.Transfer, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	TransfersTotal.WithLabelValues(string(t.Kind), status).Inc()
}
