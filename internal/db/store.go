// Package db is the typed, indexed persistence layer: a connection pool
// over one SQLite file per (wallet fingerprint, network), plus scoped
// transactions and the coins/assets/p2 puzzles/derivations/lineage/
// mempool/offers/peaks operations everything else in this engine reads
// and writes through.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/rawblock/lightwallet-engine/internal/walleterr"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the migration level this build knows how to read and
// write. Startup fails closed if the database's stored version exceeds it.
const schemaVersion = 1

// Store wraps a single SQLite connection pool: a store struct holding the
// pool, a Connect constructor, and one method per domain operation.
type Store struct {
	db *sql.DB
}

// Connect opens (creating if necessary) the SQLite file at path, sets its
// pragmas, and returns a ready Store.
func Connect(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(60000)")
	if err != nil {
		return nil, walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.Connect", "open sqlite file", err)
	}

	// SQLite only really tolerates one writer; a single-connection pool
	// avoids SQLITE_BUSY from concurrent writers in-process and lets the
	// busy_timeout above absorb external writer contention instead.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.Connect", "ping sqlite file", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.Connect", "set pragma "+p, err)
		}
	}

	log.Printf("[db] connected to %s (WAL, busy_timeout=60s)", path)
	return &Store{db: conn}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates every table this engine needs if they do not already
// exist, and enforces the fail-closed version check.
func (s *Store) InitSchema(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&count); err != nil {
		return walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.InitSchema", "probe schema_version table", err)
	}

	if count == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.InitSchema", "execute schema.sql", err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.InitSchema", "stamp schema_version", err)
		}
		log.Printf("[db] schema initialized at version %d", schemaVersion)
		return nil
	}

	var stored int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&stored); err != nil {
		return walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.InitSchema", "read schema_version", err)
	}
	if stored > schemaVersion {
		return walleterr.New(walleterr.KindDatabaseCorrupt, "db.InitSchema",
			fmt.Sprintf("database schema version %d is newer than this build's %d", stored, schemaVersion))
	}

	// Idempotent: re-running the DDL against an already-current schema is
	// a no-op for every CREATE TABLE/INDEX IF NOT EXISTS statement.
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return walleterr.Wrap(walleterr.KindDatabaseCorrupt, "db.InitSchema", "re-apply schema.sql", err)
	}
	return nil
}

// Tx is a scoped transaction handle, obtained through WithTx. Store-level
// methods run directly on the connection pool outside any transaction;
// many operations exist only as Tx methods, and a few exist in both forms
// so multi-step callers like the Puzzle Queue and the Sync Manager's
// reorg handling can stay inside one transaction.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back if fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, beginErr := s.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return walleterr.Wrap(walleterr.KindDatabaseBusy, "db.WithTx", "begin transaction", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.KindDatabaseBusy, "db.WithTx", "commit transaction", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting every
// operation below be written once and exposed via both a Store method
// and a Tx method.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) q() querier { return s.db }
func (t *Tx) q() querier    { return t.tx }
