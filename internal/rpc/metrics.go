package rpc

import (
	"context"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPC metrics
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_rpc_requests_total",
			Help: "Total number of RPC requests by chain and method",
		},
		[]string{"chain", "method"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_rpc_errors_total",
			Help: "Total number of RPC errors by chain, method and type",
		},
		[]string{"chain", "method", "error_type"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callindexor_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_rpc_retries_total",
			Help: "Total number of retried fetch operations",
		},
		[]string{"chain", "operation"},
	)
)

func RPCMethodInc(chain common.Chain, method string) {
	RPCRequests.WithLabelValues(chain.String(), method).Inc()
}

func RPCMethodDuration(chain common.Chain, method string, duration time.Duration) {
	RPCDuration.WithLabelValues(chain.String(), method).Observe(duration.Seconds())
}

func RPCMethodError(chain common.Chain, method, errorType string) {
	RPCErrors.WithLabelValues(chain.String(), method, errorType).Inc()
}

func RPCRetryInc(chain common.Chain, operation string) {
	RPCRetries.WithLabelValues(chain.String(), operation).Inc()
}

// instrument waits on the limiter, runs fn and records the request metrics.
func instrument(ctx context.Context, limiter *RateLimiter, chain common.Chain, method string, fn func() error) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	RPCMethodInc(chain, method)
	start := time.Now()
	err := fn()
	RPCMethodDuration(chain, method, time.Since(start))

	if err != nil {
		RPCMethodError(chain, method, errorType(err))
	}

	return err
}
