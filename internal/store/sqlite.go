package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

// DefaultSQLiteFile is the database file name used when only a directory is configured.
const DefaultSQLiteFile = "secrets.db"

// SQLiteBackend persists secrets in a single SQLite table. The database file
// is kept at 0600 like FileBackend's files.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and migrates) a SQLite database. dsn can be a file
// path or a SQLite DSN such as "file::memory:?cache=shared".
func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultSQLiteFile
	}
	if err := restrictDBFile(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite secret store: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between writers in one process.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db}
	if err := b.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// restrictDBFile creates the database file owner-only (0600) before SQLite
// opens it, and tightens an existing one. SQLite gives its journal files the
// database file's mode. URI and in-memory DSNs are left alone.
func restrictDBFile(dsn string) error {
	if strings.HasPrefix(dsn, "file:") || strings.HasPrefix(dsn, ":memory:") {
		return nil
	}
	f, err := os.OpenFile(dsn, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("create sqlite secret store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("create sqlite secret store: %w", err)
	}
	if err := os.Chmod(dsn, 0600); err != nil {
		return fmt.Errorf("restrict sqlite secret store permissions: %w", err)
	}
	return nil
}

// NewSQLiteBackendInDir opens <dir>/secrets.db.
func NewSQLiteBackendInDir(dir string) (*SQLiteBackend, error) {
	return NewSQLiteBackend(filepath.Join(dir, DefaultSQLiteFile))
}

func (b *SQLiteBackend) init() error {
	if err := b.db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite secret store: %w", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS secrets (
	name TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`
	if _, err := b.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize secret store schema: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, name, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, name string, value []byte) error {
	query := `INSERT INTO secrets(name, value, updated_at) VALUES(?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := b.db.ExecContext(ctx, query, name, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStoreUnavailable, name, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, name string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM secrets WHERE name = ?`, name); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, name, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
