// Package storage keeps received mail and favorites in a local SQLite database
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// FileName is the database file inside the config directory
const FileName = "data.db"

const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database in the given directory
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	// Pragmas in the DSN apply to every pooled connection
	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mail_history (
			id          TEXT PRIMARY KEY,
			sender_name TEXT NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			node_string TEXT NOT NULL DEFAULT '',
			timestamp   INTEGER NOT NULL,
			received_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS mail_history_received ON mail_history(received_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create mail history table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS favorites (
			name TEXT PRIMARY KEY
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create favorites table: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

// Close closes the database
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}
