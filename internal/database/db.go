// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection with WAL mode enabled.
// The parent directory is created when missing so a deleted data
// directory resets cleanly on next startup.
func New(dbPath string) (*DB, error) {
	// file: URIs are used for in-memory databases in tests - skip filepath operations
	if !strings.HasPrefix(dbPath, "file:") {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = absPath
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single-user journal, keep the pool small
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Migrate creates the schema. All statements are idempotent so a missing
// database file is recreated on next startup without a separate setup step.
func (db *DB) Migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trade_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			chart_id TEXT,
			verdict TEXT NOT NULL,
			verdict_text TEXT NOT NULL,
			outcome TEXT,
			rule_applied TEXT NOT NULL,
			entry_price REAL NOT NULL,
			target_price REAL NOT NULL,
			stop_price REAL NOT NULL,
			confidence INTEGER NOT NULL DEFAULT 0,
			reflection_text TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_log_outcome ON trade_log(outcome)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			observed_at INTEGER NOT NULL,
			price REAL NOT NULL,
			source TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_observed_at ON price_history(observed_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}
