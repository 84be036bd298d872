// Package db provides SQLite storage for posts and their reply graph.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/postview/internal/logging"
)

// Config holds database connection settings.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int
}

// DB wraps a SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at cfg.Path and applies the schema.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", cfg.Path, busy)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: conn, path: cfg.Path, logger: logging.Component("db")}
	if err := db.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	db.logger.Debug().Str("path", cfg.Path).Msg("database opened")
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Transaction runs fn inside a transaction, committing on success.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			site TEXT NOT NULL,
			board TEXT NOT NULL,
			thread_no INTEGER NOT NULL,
			post_no INTEGER NOT NULL,
			sub_no INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			images_json TEXT,
			sticky INTEGER NOT NULL DEFAULT 0,
			closed INTEGER NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			replies INTEGER NOT NULL DEFAULT 0,
			image_replies INTEGER NOT NULL DEFAULT 0,
			posted_at TEXT NOT NULL,
			bumped_at TEXT,
			last_modified TEXT,
			PRIMARY KEY (site, board, thread_no, post_no, sub_no)
		)`,
		`CREATE TABLE IF NOT EXISTS post_replies (
			site TEXT NOT NULL,
			from_board TEXT NOT NULL,
			from_thread INTEGER NOT NULL,
			from_post INTEGER NOT NULL,
			from_sub INTEGER NOT NULL DEFAULT 0,
			to_board TEXT NOT NULL,
			to_thread INTEGER NOT NULL,
			to_post INTEGER NOT NULL,
			to_sub INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (site, from_board, from_thread, from_post, from_sub, to_board, to_thread, to_post, to_sub)
		)`,
		`CREATE INDEX IF NOT EXISTS post_replies_to_idx ON post_replies(site, to_board, to_thread, to_post, to_sub)`,
		`CREATE INDEX IF NOT EXISTS posts_catalog_idx ON posts(site, board, thread_no, post_no)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
