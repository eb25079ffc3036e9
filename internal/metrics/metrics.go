package metrics

import (
	"runtime"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll cycle outcomes.
const (
	CycleOK           = "ok"
	CycleIdle         = "idle"
	CycleFetchFailed  = "fetch_failed"
	CyclePersistError = "persist_failed"
	CycleAborted      = "aborted"
)

var (
	// Poller metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_poll_cycles_total",
			Help: "Total number of poll cycles by chain and outcome",
		},
		[]string{"chain", "outcome"},
	)

	PollCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callindexor_poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	PollTicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_poll_ticks_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
		[]string{"chain"},
	)

	CursorHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callindexor_cursor_height",
			Help: "Next height each chain poller will fetch",
		},
		[]string{"chain"},
	)

	ChainIndexerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callindexor_chain_indexer_state",
			Help: "Lifecycle state of each chain poller (1 for the current state)",
		},
		[]string{"chain", "state"},
	)

	// Event metrics
	EventsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_events_indexed_total",
			Help: "Total number of events persisted by chain and type",
		},
		[]string{"chain", "event_type"},
	)

	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_events_duplicate_total",
			Help: "Total number of events skipped as already persisted",
		},
		[]string{"chain"},
	)

	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_decode_errors_total",
			Help: "Total number of events skipped because they could not be decoded",
		},
		[]string{"chain"},
	)

	PersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_persist_errors_total",
			Help: "Total number of events that failed to persist",
		},
		[]string{"chain"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callindexor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callindexor_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callindexor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callindexor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func PollCycleInc(chain common.Chain, outcome string) {
	PollCycles.WithLabelValues(chain.String(), outcome).Inc()
}

func PollCycleDurationLog(chain common.Chain, duration time.Duration) {
	PollCycleDuration.WithLabelValues(chain.String()).Observe(duration.Seconds())
}

func PollTickSkippedInc(chain common.Chain) {
	PollTicksSkipped.WithLabelValues(chain.String()).Inc()
}

func CursorHeightSet(chain common.Chain, next uint64) {
	CursorHeight.WithLabelValues(chain.String()).Set(float64(next))
}

// ChainIndexerStateSet marks state as the current one among states.
func ChainIndexerStateSet(chain common.Chain, state string, states []string) {
	for _, s := range states {
		v := float64(0)
		if s == state {
			v = 1
		}
		ChainIndexerState.WithLabelValues(chain.String(), s).Set(v)
	}
}

func EventsIndexedInc(chain common.Chain, eventType string) {
	EventsIndexed.WithLabelValues(chain.String(), eventType).Inc()
}

func EventsDuplicateInc(chain common.Chain) {
	EventsDuplicate.WithLabelValues(chain.String()).Inc()
}

func DecodeErrorsInc(chain common.Chain) {
	DecodeErrors.WithLabelValues(chain.String()).Inc()
}

func PersistErrorsInc(chain common.Chain) {
	PersistErrors.WithLabelValues(chain.String()).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
