package migrations

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/prediction-market/callindexor/internal/db"
	"github.com/prediction-market/callindexor/internal/logger"
)

//go:embed sqlite/001_indexer_schema.sql
var sqlite001 string

//go:embed postgres/001_indexer_schema.sql
var postgres001 string

// ForDialect returns the schema migrations for the given sql-migrate dialect.
func ForDialect(dialect string) ([]db.Migration, error) {
	switch dialect {
	case db.DialectSQLite:
		return []db.Migration{{ID: "001_indexer_schema.sql", SQL: sqlite001}}, nil
	case db.DialectPostgres:
		return []db.Migration{{ID: "001_indexer_schema.sql", SQL: postgres001}}, nil
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

// RunMigrations brings the read model schema up to date.
func RunMigrations(log *logger.Logger, sqlDB *sql.DB, dialect string) error {
	migs, err := ForDialect(dialect)
	if err != nil {
		return err
	}

	return db.RunMigrationsDB(log, sqlDB, dialect, migs)
}
