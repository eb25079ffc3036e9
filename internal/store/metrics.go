package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_store_operations_total",
			Help: "Total number of store operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callindexor_store_operation_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func observeOperation(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(operation, result).Inc()
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
