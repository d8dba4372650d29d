// Package db opens the SQLite database that backs the dead-letter store and
// applies its schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// Mode selects the pool shape for a SQLite connection.
type Mode string

// Pool modes.
const (
	// ModeWrite is a single-connection pool taking immediate write locks.
	ModeWrite Mode = "write"
	// ModeRead is a multi-connection pool for concurrent readers.
	ModeRead Mode = "read"
)

const defaultReadConns = 4

// OpenSQLite opens a *sql.DB pool for the given SQLite file path.
//
// ModeWrite sets MaxOpenConns=1 and _txlock=immediate so writers queue in
// Go rather than fail with SQLITE_BUSY. ModeRead allows maxOpen connections
// (0 means 4). Both set WAL journal, busy_timeout=5000ms,
// synchronous=NORMAL, and foreign_keys=on.
func OpenSQLite(ctx context.Context, path string, mode Mode, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case ModeWrite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case ModeRead:
		if maxOpen <= 0 {
			maxOpen = defaultReadConns
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

// Pools is a write pool and a read pool over the same SQLite file.
type Pools struct {
	Write *sql.DB
	Read  *sql.DB
}

// OpenPools opens both pools for path. readMaxOpen of 0 means 4.
func OpenPools(ctx context.Context, path string, readMaxOpen int) (*Pools, error) {
	writeDB, err := OpenSQLite(ctx, path, ModeWrite, 0)
	if err != nil {
		return nil, err
	}
	readDB, err := OpenSQLite(ctx, path, ModeRead, readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}
	return &Pools{Write: writeDB, Read: readDB}, nil
}

// Open opens the pools for path and brings the schema up to date.
func Open(ctx context.Context, path string) (*Pools, error) {
	pools, err := OpenPools(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pools.Write); err != nil {
		_ = pools.Close()
		return nil, err
	}
	return pools, nil
}

// Close closes both pools.
func (p *Pools) Close() error {
	rerr := p.Read.Close()
	werr := p.Write.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// buildDSN constructs a SQLite DSN with hardened parameters.
func buildDSN(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")

	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
