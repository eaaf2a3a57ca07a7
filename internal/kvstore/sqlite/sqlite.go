// Package sqlite provides a SQLite-backed key-value backend.
//
// URLs take the form sqlite:///var/lib/wasmbus/kv.db or sqlite://memory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/gezibash/wasmbus/internal/kvstore"
	"github.com/gezibash/wasmbus/internal/storage"
)

const (
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID`

func init() {
	kvstore.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5000",
	}
}

// NewFactory opens the database file named by the URL host and path.
func NewFactory(_ context.Context, u *url.URL, config map[string]string) (kvstore.Store, error) {
	path := u.Host + u.Path
	if path == "" {
		return nil, storage.MissingOption("sqlite", "path")
	}

	busyTimeout, err := storage.GetInt(config, KeyBusyTimeout, 5000)
	if err != nil {
		return nil, storage.InStore("sqlite", err)
	}
	journalMode := storage.GetString(config, KeyJournalMode, "wal")

	var dsn string
	if path == "memory" {
		dsn = fmt.Sprintf(":memory:?_pragma=busy_timeout(%d)", busyTimeout)
	} else {
		path = storage.ExpandPath(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, storage.OpenFailed("sqlite", "path", "failed to create directory", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)", path, busyTimeout, journalMode)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.OpenFailed("sqlite", "path", "failed to open database", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storage.OpenFailed("sqlite", "path", "failed to initialize schema", err)
	}

	slog.Info("sqlite kvstore initialized", "path", path, "journal_mode", journalMode)
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database that already has the kv table.
func NewWithDB(db *sql.DB, opts ...kvstore.RecordOption) kvstore.Store {
	return kvstore.NewRecordStore(&engine{db: db}, opts...)
}

type engine struct {
	db *sql.DB
}

// View runs fn in an ordinary transaction; the single connection already
// serializes readers and writers.
func (e *engine) View(ctx context.Context, fn func(kvstore.Txn) error) error {
	return e.run(ctx, fn)
}

func (e *engine) Update(ctx context.Context, fn func(kvstore.Txn) error) error {
	return e.run(ctx, fn)
}

func (e *engine) run(ctx context.Context, fn func(kvstore.Txn) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(sqlTxn{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

func (e *engine) Close() error {
	return e.db.Close()
}

type sqlTxn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t sqlTxn) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get: %w", err)
	}
	return value, true, nil
}

func (t sqlTxn) Put(key string, value []byte) error {
	if _, err := t.tx.ExecContext(t.ctx, `INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

func (t sqlTxn) Delete(key string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}
