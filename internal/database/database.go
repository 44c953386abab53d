// Package database opens the local SQLite store that keeps drafts,
// credentials and the publish log.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// DB is the constructor's local store
type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger
}

// Config holds database configuration. Zero pool values keep the
// database/sql defaults.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// BusyTimeout is how long a writer waits on a locked file
	BusyTimeout time.Duration
}

// DefaultConfig places constructor.db in dataDir. Drafts autosave while
// the API and the CLI may both hold the file, hence the busy timeout.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		Path:            filepath.Join(dataDir, "constructor.db"),
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
	}
}

func (c *Config) memory() bool { return c.Path == MemoryPath }

// dsn builds the go-sqlite3 connection string
func (c *Config) dsn() string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	if c.memory() {
		return "file::memory:?" + q.Encode()
	}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	if c.BusyTimeout > 0 {
		q.Set("_busy_timeout", fmt.Sprint(c.BusyTimeout.Milliseconds()))
	}
	return "file:" + c.Path + "?" + q.Encode()
}

func (c *Config) configure(db *sql.DB) {
	if c.memory() {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
}

// Open opens the database, creating its directory when needed
func Open(cfg *Config) (*DB, error) {
	if !cfg.memory() {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	cfg.configure(sqlDB)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.Path, err)
	}

	db := &DB{
		DB:     sqlDB,
		path:   cfg.Path,
		logger: slog.Default().With("component", "database"),
	}
	db.logger.Debug("Database opened", "path", cfg.Path)
	return db, nil
}

func (db *DB) Close() error {
	db.logger.Debug("Closing database", "path", db.path)
	return db.DB.Close()
}

// Path is the file path, or MemoryPath
func (db *DB) Path() string {
	return db.path
}

// Health pings with a short deadline for /health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Transaction commits when fn succeeds and rolls back otherwise. fn's error
// is returned as is so callers can match it.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Warn("Rollback failed", "error", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Checkpoint folds the WAL back into the main file; the service calls it
// on shutdown so a copied constructor.db is complete
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.path == MemoryPath {
		return nil
	}
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
