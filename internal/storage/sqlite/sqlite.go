// Package sqlite implements the storage engine on SQLite.
//
// The database is opened in WAL mode with foreign keys on and a busy
// timeout. Every mutation goes through the transactional pipeline in
// mutate.go; reads use the pooled connection directly.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/braid-dev/braid/internal/errs"
)

// Store implements storage.Storage on SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// memDBCounter names in-memory databases uniquely per process.
var memDBCounter atomic.Int64

// setupWASMCache configures WASM compilation caching so the embedded SQLite
// module is compiled once per machine instead of on every process start.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "braid", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// DefaultBusyTimeout is how long writers wait on the write lock before the
// operation fails with LockContention.
const DefaultBusyTimeout = 5 * time.Second

// Open creates or opens the database at path and brings the schema up to
// date. Pass ":memory:" for an in-memory store (tests).
func Open(path string) (*Store, error) {
	return OpenWithBusyTimeout(path, DefaultBusyTimeout)
}

// OpenWithBusyTimeout is Open with an explicit lock wait.
func OpenWithBusyTimeout(path string, busyTimeout time.Duration) (*Store, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	busyMS := busyTimeout.Milliseconds()

	var connStr string
	switch {
	case path == ":memory:":
		// Shared cache so multiple pooled connections see the same data; WAL
		// does not work in-memory, so journal_mode stays DELETE. Each Open
		// gets its own named database so stores do not leak into each other.
		name := fmt.Sprintf("memdb%d", memDBCounter.Add(1))
		connStr = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", name, busyMS)
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += fmt.Sprintf("&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", busyMS)
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errs.Wrap(errs.CodeIOError, err, "failed to create database directory")
		}
		connStr = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", path, busyMS)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errs.Wrap(errs.CodeIOError, err, "failed to open database")
	}

	// In-memory databases are isolated per connection without this.
	if path == ":memory:" || strings.Contains(connStr, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.CodeIOError, err, "failed to ping database")
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	absPath := path
	if path != ":memory:" {
		if absPath, err = filepath.Abs(path); err != nil {
			absPath = path
		}
	}
	return &Store{db: db, dbPath: absPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

// Path returns the absolute path of the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the pooled connection for extensions and tests. Do
// not close it; the Store owns the lifecycle.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// CheckpointWAL flushes the write-ahead log into the main database file so
// the file is safe to copy.
func (s *Store) CheckpointWAL(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	return err
}

// GetConfig reads a value from the config table; "" when absent.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig upserts a value into the config table.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetMetadata reads internal sync state; "" when absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata upserts internal sync state.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Prefix returns the workspace issue prefix recorded at init time.
func (s *Store) Prefix(ctx context.Context) (string, error) {
	prefix, err := s.GetConfig(ctx, "issue_prefix")
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return "", errs.New(errs.CodeSchemaError, "database not initialized: issue_prefix config is missing").
			WithHint("run 'br init --prefix <prefix>' first")
	}
	return prefix, nil
}

// wrapBusy converts SQLite lock-contention failures into the typed
// LockContention error; other errors pass through.
func wrapBusy(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return errs.Wrap(errs.CodeLockContention, err, "%s: write lock busy", op).
			WithHint("another process holds the write lock; retry")
	}
	return fmt.Errorf("%s: %w", op, err)
}
