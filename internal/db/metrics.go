package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_maintenance_runs_total",
			Help: "Total number of maintenance passes by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callindexor_maintenance_duration_seconds",
			Help:    "Duration of maintenance passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callindexor_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance pass",
		},
	)

	maintenanceSpaceReclaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callindexor_maintenance_space_reclaimed_bytes",
			Help: "Bytes reclaimed by the last maintenance pass",
		},
	)

	maintenanceSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callindexor_maintenance_steps_total",
			Help: "Total number of WAL checkpoints and VACUUM runs",
		},
		[]string{"step"},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callindexor_db_size_bytes",
			Help: "SQLite database size in bytes, WAL and SHM files included",
		},
	)
)

func MaintenanceRunsInc() {
	maintenanceRuns.WithLabelValues("started").Inc()
}

func MaintenanceErrorInc() {
	maintenanceRuns.WithLabelValues("error").Inc()
}

func MaintenanceSuccessInc() {
	maintenanceRuns.WithLabelValues("success").Inc()
}

func MaintenanceDurationLog(d time.Duration) {
	maintenanceDuration.Observe(d.Seconds())
}

func MaintenanceLastRunLog() {
	maintenanceLastRun.Set(float64(time.Now().UTC().Unix()))
}

func MaintenanceSpaceReclaimedLog(bytes uint64) {
	maintenanceSpaceReclaimed.Set(float64(bytes))
}

func WALCheckpointInc(mode string) {
	maintenanceSteps.WithLabelValues("wal_checkpoint_" + mode).Inc()
}

func VacuumRunsInc() {
	maintenanceSteps.WithLabelValues("vacuum").Inc()
}

func DBSizeLog(sizeBytes int64) {
	dbSize.Set(float64(sizeBytes))
}
