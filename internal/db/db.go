package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/russross/meddler"
)

const (
	// DialectSQLite is the sql-migrate dialect name of the sqlite backend.
	DialectSQLite = "sqlite3"
	// DialectPostgres is the sql-migrate dialect name of the postgres backend.
	DialectPostgres = "postgres"
)

// DB is an open database handle together with the dialect it speaks.
type DB struct {
	*sql.DB

	dialect string
	pool    *pgxpool.Pool
}

// Open opens the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		sqlDB, err := NewSQLiteDBFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return &DB{DB: sqlDB, dialect: DialectSQLite}, nil
	case config.DriverPostgres:
		return NewPostgresDB(ctx, cfg.DSN, cfg.MaxOpenConnections)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLiteDB creates a new SQLite DB with the default connection options.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=30000",
		dbPath,
	))
}

// NewSQLiteDBFromConfig creates a new SQLite DB with the given configuration.
// _txlock=immediate makes every transaction take the write lock up front,
// which serializes the per-event sink transactions across pollers.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	foreignKeys := "off"
	if cfg.EnableForeignKeys {
		foreignKeys = "on"
	}

	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=%s&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		foreignKeys,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// NewPostgresDB opens a pgx pool for dsn and exposes it through database/sql.
func NewPostgresDB(ctx context.Context, dsn string, maxConns int) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns) //nolint:gosec
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	return &DB{DB: stdlib.OpenDBFromPool(pool), dialect: DialectPostgres, pool: pool}, nil
}

// Dialect returns the sql-migrate dialect name.
func (d *DB) Dialect() string {
	return d.dialect
}

// Meddler returns the meddler flavor matching the dialect.
func (d *DB) Meddler() *meddler.Database {
	if d.dialect == DialectPostgres {
		return meddler.PostgreSQL
	}
	return meddler.SQLite
}

// Rebind rewrites '?' placeholders into the dialect's placeholder syntax.
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8) //nolint:mnd
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database handle and the underlying pool, if any.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}
