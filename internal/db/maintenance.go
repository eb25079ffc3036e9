package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/pkg/config"
)

// Maintenance runs periodic housekeeping on the database and coordinates it with
// regular store operations.
type Maintenance interface {
	// Start begins background maintenance if enabled.
	Start(ctx context.Context) error
	// Stop stops background maintenance and waits for completion.
	Stop() error
	// AcquireOperationLock acquires a shared lock for a database operation.
	// The returned function releases it.
	AcquireOperationLock() func()
	// GetMetrics returns current maintenance metrics.
	GetMetrics() MaintenanceMetrics
	// RunMaintenance performs one maintenance pass.
	RunMaintenance(ctx context.Context) error
}

// MaintenanceMetrics provides visibility into maintenance operations.
type MaintenanceMetrics struct {
	LastMaintenanceTime  time.Time
	MaintenanceCount     uint64
	LastMaintenanceError error
}

// NoOpMaintenance is used for backends that need no housekeeping (postgres) or when
// maintenance is not configured.
type NoOpMaintenance struct{}

func (NoOpMaintenance) Start(context.Context) error          { return nil }
func (NoOpMaintenance) Stop() error                          { return nil }
func (NoOpMaintenance) RunMaintenance(context.Context) error { return nil }
func (NoOpMaintenance) AcquireOperationLock() func()         { return func() {} }
func (NoOpMaintenance) GetMetrics() MaintenanceMetrics       { return MaintenanceMetrics{} }

// MaintenanceCoordinator checkpoints the WAL and vacuums a sqlite database.
// Operations hold the read side of opLock; a maintenance pass holds the write side.
type MaintenanceCoordinator struct {
	db     *sql.DB
	config config.MaintenanceConfig
	dbPath string
	log    *logger.Logger

	opLock sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsLock sync.Mutex
	metrics     MaintenanceMetrics
}

// NewMaintenance returns the maintenance implementation for the opened database.
func NewMaintenance(database *DB, cfg config.DatabaseConfig, log *logger.Logger) Maintenance {
	if database.Dialect() != DialectSQLite || cfg.Maintenance == nil {
		return NoOpMaintenance{}
	}

	return newMaintenanceCoordinator(cfg.Path, database.DB, *cfg.Maintenance, log)
}

func newMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceCoordinator {
	return &MaintenanceCoordinator{
		db:     db,
		config: cfg,
		dbPath: dbPath,
		log:    log.WithComponent(common.ComponentMaintenance),
	}
}

// Start begins background maintenance if enabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Info("background maintenance is disabled")
		return nil
	}

	if m.config.CheckInterval.Duration <= 0 {
		return fmt.Errorf("maintenance check interval must be positive")
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.config.VacuumOnStartup {
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnw("startup maintenance failed", "error", err)
		}
	}

	m.wg.Add(1)
	go m.worker(ctx, m.config.CheckInterval.Duration)

	m.log.Infow("background maintenance started",
		"interval", m.config.CheckInterval.Duration,
		"checkpoint_mode", m.config.WALCheckpointMode)

	return nil
}

// Stop stops background maintenance and waits for the worker to exit.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.log.Info("background maintenance stopped")

	return nil
}

func (m *MaintenanceCoordinator) worker(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil {
				m.log.Warnw("periodic maintenance failed", "error", err)
			}
		}
	}
}

// RunMaintenance checkpoints the WAL and runs VACUUM while holding the exclusive lock.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	start := time.Now().UTC()
	MaintenanceRunsInc()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	sizeBefore, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnw("failed to read db size", "error", err)
	}

	var runErr error
	if err := m.walCheckpoint(); err != nil {
		runErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}
	if err := Vacuum(m.db); err != nil {
		runErr = errors.Join(runErr, err)
	} else {
		VacuumRunsInc()
	}

	sizeAfter, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnw("failed to read db size", "error", err)
	}

	duration := time.Since(start)
	MaintenanceDurationLog(duration)
	MaintenanceLastRunLog()
	DBSizeLog(sizeAfter)

	m.metricsLock.Lock()
	m.metrics.LastMaintenanceTime = time.Now().UTC()
	m.metrics.MaintenanceCount++
	m.metrics.LastMaintenanceError = runErr
	m.metricsLock.Unlock()

	if runErr != nil {
		MaintenanceErrorInc()
		m.log.Warnw("maintenance completed with errors", "duration", duration, "error", runErr)
		return runErr
	}

	MaintenanceSuccessInc()
	if sizeBefore > sizeAfter {
		MaintenanceSpaceReclaimedLog(uint64(sizeBefore - sizeAfter))
	}
	m.log.Infow("maintenance completed", "duration", duration, "size_bytes", sizeAfter)

	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint() error {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil
	}

	var busy, logFrames, checkpointed int
	stmt := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.config.WALCheckpointMode)
	if err := m.db.QueryRow(stmt).Scan(&busy, &logFrames, &checkpointed); err != nil {
		return err
	}

	WALCheckpointInc(strings.ToLower(m.config.WALCheckpointMode))
	m.log.Debugw("WAL checkpoint complete",
		"mode", m.config.WALCheckpointMode, "busy", busy, "log_frames", logFrames, "checkpointed", checkpointed)

	return nil
}

// AcquireOperationLock acquires the shared side of the maintenance lock.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// GetMetrics returns current maintenance metrics.
func (m *MaintenanceCoordinator) GetMetrics() MaintenanceMetrics {
	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	return m.metrics
}

// Vacuum rebuilds the database file to reclaim free pages.
func Vacuum(db *sql.DB) error {
	if _, err := db.Exec("VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked (retry later)")
		}
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// DBTotalSize returns the size of the sqlite file plus its -wal and -shm companions.
// Missing files count as zero.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
