package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	itypes "github.com/prediction-market/callindexor/internal/types"
	"github.com/stellar/go/strkey"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultPollInterval  = 12 * time.Second
	defaultRetryDelay    = 5 * time.Second
	defaultMaxRetries    = 3
	defaultMaxBlockRange = 5000
	defaultPageLimit     = 100
	maxPageLimit         = 10000
)

// Config represents the complete configuration for CallIndexor.
type Config struct {
	// Indexer selects which chain indexers are enabled
	Indexer IndexerConfig `yaml:"indexer" json:"indexer" toml:"indexer"`

	// Base contains the EVM (Base) chain indexer configuration
	Base *BaseConfig `yaml:"base,omitempty" json:"base,omitempty" toml:"base,omitempty"`

	// Stellar contains the Stellar/Soroban chain indexer configuration
	Stellar *StellarConfig `yaml:"stellar,omitempty" json:"stellar,omitempty" toml:"stellar,omitempty"`

	// DB contains the read model database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the HTTP API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// IndexerConfig holds the per-chain feature flags.
type IndexerConfig struct {
	// EnableBase turns on the EVM (Base) indexer
	EnableBase bool `yaml:"enable_base" json:"enable_base" toml:"enable_base"`

	// EnableStellar turns on the Stellar/Soroban indexer
	EnableStellar bool `yaml:"enable_stellar" json:"enable_stellar" toml:"enable_stellar"`
}

// PollerConfig holds the options shared by every chain poller.
type PollerConfig struct {
	// RPCURL is the chain RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// PollInterval is the time between poll cycles (default 12s)
	PollInterval internalcommon.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// MaxRetries is the number of retries after a failed RPC fetch (default 3).
	// An explicit 0 disables retries.
	MaxRetries *int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" toml:"max_retries,omitempty"`

	// RetryDelay is the fixed delay between fetch attempts (default 5s).
	// An explicit 0 retries immediately.
	RetryDelay *internalcommon.Duration `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty" toml:"retry_delay,omitempty"` //nolint:lll

	// RequestsPerSecond caps outgoing RPC requests; 0 disables rate limiting
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`

	// Burst is the rate limiter burst size (defaults to 1 when rate limiting is enabled)
	Burst int `yaml:"burst" json:"burst" toml:"burst"`
}

// ApplyDefaults sets default values for optional poller fields.
func (p *PollerConfig) ApplyDefaults() {
	if p.PollInterval.Duration == 0 {
		p.PollInterval = internalcommon.NewDuration(defaultPollInterval)
	}
	if p.MaxRetries == nil {
		retries := defaultMaxRetries
		p.MaxRetries = &retries
	}
	if p.RetryDelay == nil {
		delay := internalcommon.NewDuration(defaultRetryDelay)
		p.RetryDelay = &delay
	}
	if p.RequestsPerSecond > 0 && p.Burst == 0 {
		p.Burst = 1
	}
}

// Validate checks the shared poller options. prefix is the config section name.
func (p *PollerConfig) Validate(prefix string) error {
	if p.RPCURL == "" {
		return fmt.Errorf("%s.rpc_url is required", prefix)
	}
	if p.PollInterval.Duration <= 0 {
		return fmt.Errorf("%s.poll_interval must be positive", prefix)
	}
	if p.Retries() < 0 {
		return fmt.Errorf("%s.max_retries must not be negative", prefix)
	}
	if p.Delay() < 0 {
		return fmt.Errorf("%s.retry_delay must not be negative", prefix)
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("%s.requests_per_second must not be negative", prefix)
	}
	return nil
}

// Retries returns MaxRetries, or the default when it is unset.
func (p *PollerConfig) Retries() int {
	if p.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *p.MaxRetries
}

// Delay returns RetryDelay, or the default when it is unset.
func (p *PollerConfig) Delay() time.Duration {
	if p.RetryDelay == nil {
		return defaultRetryDelay
	}
	return p.RetryDelay.Duration
}

// BaseConfig represents the configuration of the EVM (Base) indexer.
type BaseConfig struct {
	PollerConfig `yaml:",inline"`

	// ContractAddress is the CallRegistry contract address
	ContractAddress string `yaml:"contract_address" json:"contract_address" toml:"contract_address"`

	// StartBlock is the first block to index when no cursor is stored (0 = block 1)
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// Finality selects the tip used as the upper bound: "latest", "safe" or "finalized"
	Finality string `yaml:"finality" json:"finality" toml:"finality"`

	// MaxBlockRange caps the block span of a single poll cycle
	MaxBlockRange uint64 `yaml:"max_block_range" json:"max_block_range" toml:"max_block_range"`
}

// ApplyDefaults sets default values for optional Base fields.
func (b *BaseConfig) ApplyDefaults() {
	b.PollerConfig.ApplyDefaults()

	if b.Finality == "" {
		b.Finality = itypes.FinalityLatest.String()
	}
	if b.MaxBlockRange == 0 {
		b.MaxBlockRange = defaultMaxBlockRange
	}
}

// Validate checks the Base indexer configuration.
func (b *BaseConfig) Validate() error {
	if err := b.PollerConfig.Validate("base"); err != nil {
		return err
	}

	if b.ContractAddress == "" {
		return fmt.Errorf("base.contract_address is required")
	}
	if !common.IsHexAddress(b.ContractAddress) {
		return fmt.Errorf("base.contract_address: invalid address %q", b.ContractAddress)
	}

	if _, err := itypes.ParseBlockFinality(b.Finality); err != nil {
		return fmt.Errorf("base.finality: %w", err)
	}

	return nil
}

// StellarConfig represents the configuration of the Stellar/Soroban indexer.
type StellarConfig struct {
	PollerConfig `yaml:",inline"`

	// ContractIDs are the Soroban contract ids (C...) to index
	ContractIDs []string `yaml:"contract_ids" json:"contract_ids" toml:"contract_ids"`

	// StartLedger is the first ledger to index when no cursor is stored
	// (0 = latest ledger minus a safety margin)
	StartLedger uint32 `yaml:"start_ledger" json:"start_ledger" toml:"start_ledger"`

	// PageLimit is the getEvents page size (default 100)
	PageLimit uint `yaml:"page_limit" json:"page_limit" toml:"page_limit"`
}

// ApplyDefaults sets default values for optional Stellar fields.
func (s *StellarConfig) ApplyDefaults() {
	s.PollerConfig.ApplyDefaults()

	if s.PageLimit == 0 {
		s.PageLimit = defaultPageLimit
	}
}

// Validate checks the Stellar indexer configuration.
func (s *StellarConfig) Validate() error {
	if err := s.PollerConfig.Validate("stellar"); err != nil {
		return err
	}

	if len(s.ContractIDs) == 0 {
		return fmt.Errorf("stellar.contract_ids: at least one contract must be configured")
	}

	for i, id := range s.ContractIDs {
		if _, err := strkey.Decode(strkey.VersionByteContract, id); err != nil {
			return fmt.Errorf("stellar.contract_ids[%d]: invalid contract id %q: %w", i, id, err)
		}
	}

	if s.PageLimit > maxPageLimit {
		return fmt.Errorf("stellar.page_limit must not exceed %d", maxPageLimit)
	}

	return nil
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Driver selects the backend: "sqlite" (default) or "postgres"
	Driver string `yaml:"driver" json:"driver" toml:"driver"`

	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// DSN is the PostgreSQL connection string (postgres driver only)
	DSN string `yaml:"dsn" json:"dsn" toml:"dsn"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`

	// Maintenance contains optional SQLite maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.Driver == "" {
		d.Driver = DriverSQLite
	}
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if d.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
		if d.Maintenance != nil && d.Maintenance.Enabled {
			return fmt.Errorf("db.maintenance is only supported by the sqlite driver")
		}
	default:
		return fmt.Errorf("db.driver must be one of: sqlite, postgres")
	}

	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if d.Maintenance != nil {
		if err := d.Maintenance.Validate(); err != nil {
			return fmt.Errorf("db.maintenance: %w", err)
		}
	}

	return nil
}

// MaintenanceConfig configures SQLite maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval internalcommon.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = internalcommon.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - orchestrator: Multi-chain lifecycle
	//   - evm-indexer: Base chain poller
	//   - stellar-indexer: Stellar chain poller
	//   - sink: Event persistence
	//   - store: Database access
	//   - rpc: RPC clients
	//   - api: HTTP API
	//   - maintenance: Database maintenance
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[internalcommon.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := internalcommon.AllComponents[internalcommon.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[internalcommon.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
// A nil config reports "info".
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if l == nil {
		return "info"
	}
	if level, ok := l.ComponentLevels[component]; ok {
		return internalcommon.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l == nil || l.DefaultLevel == "" {
		return "info"
	}
	return internalcommon.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l != nil && l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address the API server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	ReadTimeout  internalcommon.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout internalcommon.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  internalcommon.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross-origin access for browser clients
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = internalcommon.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = internalcommon.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = internalcommon.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.CORS.Enabled && len(a.CORS.AllowedOrigins) == 0 {
		a.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("listen_address is required when the API is enabled")
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Base != nil {
		c.Base.ApplyDefaults()
	}

	if c.Stellar != nil {
		c.Stellar.ApplyDefaults()
	}

	c.DB.ApplyDefaults()

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
// Chain sections are not validated here: a broken chain section must only disable
// that chain's indexer, which reports it as a ConfigError when initialized.
func (c *Config) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return err
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
