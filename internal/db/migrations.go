package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/prediction-market/callindexor/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	UpDownSeparator     = "-- +migrate Up"
	downMarker          = "-- +migrate Down"
	NoLimitMigrations   = 0 // indicate that there is no limit on the number of migrations to run
	migrationDirections = 2
)

// Migration is a single schema change. SQL holds the Down section followed by the
// Up section, separated by UpDownSeparator.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrationsDB applies every pending migration upwards.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, dialect string, migrations []Migration) error {
	return RunMigrationsDBExtended(log, db, dialect, migrations, migrate.Up, NoLimitMigrations)
}

// RunMigrationsDBExtended runs migrations in the given direction.
// dialect is the sql-migrate dialect: "sqlite3" or "postgres".
// maxMigrations applies at most that many migrations; 0 means no limit.
func RunMigrationsDBExtended(
	log *logger.Logger,
	db *sql.DB,
	dialect string,
	migrations []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int,
) error {
	source, err := toMemorySource(migrations)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(source.Migrations))
	for _, m := range source.Migrations {
		ids = append(ids, m.Id)
	}
	list := strings.Join(ids, ", ")

	log.Debugf("running migrations on %s: (max %d/%d) migrations: %s", dialect, maxMigrations, len(ids), list)

	n, err := migrate.ExecMax(db, dialect, source, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migration (max %d/%d) migrations: %s . Err: %w",
			maxMigrations, len(ids), list, err)
	}

	log.Infof("successfully ran %d migrations from migrations: %s", n, list)
	return nil
}

func toMemorySource(migrations []Migration) (*migrate.MemoryMigrationSource, error) {
	source := &migrate.MemoryMigrationSource{Migrations: make([]*migrate.Migration, 0, len(migrations))}

	for _, m := range migrations {
		parts := strings.Split(m.SQL, UpDownSeparator)
		if len(parts) < migrationDirections {
			return nil, fmt.Errorf("migration %s missing '%s' separator", m.ID, UpDownSeparator)
		}

		downSQL := parts[0]
		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = downSQL[idx+len(downMarker):]
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(parts[1])},
			Down: []string{strings.TrimSpace(downSQL)},
		})
	}

	return source, nil
}
