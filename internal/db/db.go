// Package db provides database connection management and operations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFileName = "social.db"

// DB wraps two sql.DB handles over one SQLite file: a single-connection
// writer and a pooled reader. WAL mode lets readers run while a write is in
// flight, so concurrent timeline and graph reads never queue behind a write
// or behind each other.
type DB struct {
	Write *sql.DB
	Read  *sql.DB
}

// Open opens a SQLite database under dataDir. Pragmas ride the DSN so every
// pooled connection gets them:
// - WAL mode for concurrent reads during writes
// - foreign key constraints enabled
// - busy timeout instead of immediate SQLITE_BUSY failures
func Open(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	// Open with modernc.org/sqlite (pure Go, no CGO)
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	write, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	write.SetMaxOpenConns(1) // SQLite supports a single writer
	write.SetMaxIdleConns(1)

	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	read.SetMaxOpenConns(4)
	read.SetMaxIdleConns(4)

	// Verify WAL mode took effect
	var mode string
	if err := write.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if mode != "wal" {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("expected WAL journal mode, got %q", mode)
	}

	return &DB{Write: write, Read: read}, nil
}

// Close closes both database handles.
func (db *DB) Close() error {
	var firstErr error
	if err := db.Write.Close(); err != nil {
		firstErr = err
	}
	if err := db.Read.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
