// Package storage provides SQLite persistence for saved target sets.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/pingcheck/internal/util"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	mu sync.RWMutex
}

// Open opens the database at path, creating the schema if needed.
func Open(path string) (*DB, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS target_sets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS targets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			set_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER,
			FOREIGN KEY (set_id) REFERENCES target_sets(id) ON DELETE CASCADE,
			UNIQUE(set_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_targets_set_id ON targets(set_id)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// WithLock executes a function with write lock.
func (db *DB) WithLock(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

// WithRLock executes a function with read lock.
func (db *DB) WithRLock(fn func() error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn()
}
