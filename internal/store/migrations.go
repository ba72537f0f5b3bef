package store

import (
	"database/sql"
	"fmt"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
)

// CurrentSchemaVersion is the archive layout this build writes.
const CurrentSchemaVersion = 2

// migration upgrades an archive from version-1 to version.
type migration struct {
	version     int
	description string
	apply       func(*sql.Tx) error
}

var migrations = []migration{
	{
		version:     2,
		description: "record partially classified rows per contact",
		apply: func(tx *sql.Tx) error {
			if columnExists(tx, "contacts", "row_errors") {
				return nil
			}
			_, err := tx.Exec(`ALTER TABLE contacts ADD COLUMN row_errors INTEGER NOT NULL DEFAULT 0`)
			return err
		},
	},
}

// RunMigrations brings db up to CurrentSchemaVersion. Archives newer than
// this build are rejected rather than written with a layout they don't expect.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("archive schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration to v%d (%s): %w", m.version, m.description, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logging.Store("archive migrated to schema v%d: %s", m.version, m.description)
		applied++
	}
	logging.StoreDebug("schema migrations complete: applied=%d", applied)
	return nil
}

// GetSchemaVersion reads the archive layout version. A fresh database reports 0.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(q querier, table, column string) bool {
	rows, err := q.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
