package store

import (
	"database/sql"
	"time"
)

// migration is one forward-only schema change applied after the base
// schema.sql. New entries are appended; existing entries are never
// edited. The chain grows but never rewrites history.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	// version 1 is the base schema.sql itself, recorded here so the ledger
	// and SchemaVersion stay in lockstep without a redundant statement.
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at_epoch INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	if !applied[SchemaVersion] {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_migrations(version, applied_at_epoch) VALUES (?, ?)`,
			SchemaVersion, time.Now().UnixMilli()); err != nil {
			return err
		}
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := s.runMigration(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) runMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at_epoch) VALUES (?, ?)`,
		m.version, time.Now().UnixMilli()); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ensureNoRows is a small helper some migrations use to assert a table is
// empty before adding a NOT NULL column without a default.
func ensureNoRows(tx *sql.Tx, table string) (bool, error) {
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
