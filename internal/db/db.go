// Package db persists completed scan results in SQLite. The schema is owned
// by the embedded golang-migrate migrations.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/stagescan/internal/monitoring"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database at path and applies the connection pragmas
// without touching the schema. Used by the migrate subcommand.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	return NewDBWithMigrationCheck(path, false)
}

// NewDBWithMigrationCheck opens the database at path. With checkMigrations
// set, an existing database whose schema is behind the embedded migrations is
// reported as an error instead of being migrated, so the operator can run
// "stagescan migrate up" deliberately. Fresh databases are always migrated.
func NewDBWithMigrationCheck(path string, checkMigrations bool) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := MigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}

	if checkMigrations {
		version, _, err := db.MigrateVersion(migrationsFS)
		if err != nil {
			db.Close()
			return nil, err
		}
		if version > 0 {
			if err := db.CheckMigrations(migrationsFS); err != nil {
				db.Close()
				return nil, err
			}
			return db, nil
		}
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// applyPragmas sets the WAL journal and relaxed sync that every connection
// to the scan database uses.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

var logf = monitoring.Prefixed("db")
