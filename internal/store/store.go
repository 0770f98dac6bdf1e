// Package store implements the worker's single embedded SQLite database:
// forward-only migrations, and CRUD for sessions, observations, summaries,
// checkpoints, prompts, embeddings and project aliases. Everything lives
// in one database so dedup-check-then-insert and the FK-linked
// session/observation/embedding rows stay inside a single transactional
// boundary.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kiro-memory/worker/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the current forward-only migration generation, recorded
// in backup manifests.
const SchemaVersion = 1

// Store wraps the single SQLite handle backing the worker.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens (creating if absent) the database at path, applies PRAGMAs for
// single-writer WAL concurrency, executes the base schema, and runs any
// pending migrations.
func Open(path string, log *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY races between the writer and
	// readers; WAL mode still lets readers proceed without blocking on the
	// writer's transaction.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("execute schema: %w", err)
	}

	s := &Store{db: db, log: log.With("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components (backup) that need to issue
// statements the Store doesn't wrap directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Used by every multi-statement write (ingest, consolidate,
// retention, import).
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
