// Package badger provides a BadgerDB-backed key-value backend.
//
// URLs take the form badger:///var/lib/wasmbus/kv or badger://memory.
package badger

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/gezibash/wasmbus/internal/kvstore"
	"github.com/gezibash/wasmbus/internal/storage"
)

const (
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyMemTableSize     = "mem_table_size"
)

// keyPrefix namespaces capability keys inside the database.
const keyPrefix = "kv/"

func init() {
	kvstore.Register("badger", NewFactory, Defaults)
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() map[string]string {
	return map[string]string{
		KeySyncWrites:       "false",
		KeyValueLogFileSize: strconv.FormatInt(256<<20, 10),
		KeyMemTableSize:     strconv.FormatInt(64<<20, 10),
	}
}

// NewFactory opens the database named by the URL host and path.
func NewFactory(_ context.Context, u *url.URL, config map[string]string) (kvstore.Store, error) {
	path := u.Host + u.Path
	if path == "memory" {
		return newInMemory()
	}
	if path == "" {
		return nil, storage.MissingOption("badger", "path")
	}
	path = storage.ExpandPath(path)

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, storage.OpenFailed("badger", "path", "failed to create directory", err)
	}

	syncWrites, err := storage.GetBool(config, KeySyncWrites, false)
	if err != nil {
		return nil, storage.InStore("badger", err)
	}
	valueLogFileSize, err := storage.GetInt64(config, KeyValueLogFileSize, 256<<20)
	if err != nil {
		return nil, storage.InStore("badger", err)
	}
	memTableSize, err := storage.GetInt64(config, KeyMemTableSize, 64<<20)
	if err != nil {
		return nil, storage.InStore("badger", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = syncWrites
	if valueLogFileSize > 0 {
		opts.ValueLogFileSize = valueLogFileSize
	}
	if memTableSize > 0 {
		opts.MemTableSize = memTableSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.OpenFailed("badger", "path", "failed to open database", err)
	}

	slog.Info("badger kvstore initialized", "path", path, "sync_writes", syncWrites)
	return NewWithDB(db), nil
}

func newInMemory() (kvstore.Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.OpenFailed("badger", "path", "failed to open in-memory database", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database. The store owns db and closes it.
func NewWithDB(db *badger.DB, opts ...kvstore.RecordOption) kvstore.Store {
	return kvstore.NewRecordStore(&engine{db: db}, opts...)
}

type engine struct {
	db *badger.DB
	// writeMu serializes read-modify-write updates so they never conflict.
	writeMu sync.Mutex
}

func (e *engine) View(ctx context.Context, fn func(kvstore.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.db.View(func(txn *badger.Txn) error { return fn(badgerTxn{txn}) })
}

func (e *engine) Update(ctx context.Context, fn func(kvstore.Txn) error) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error { return fn(badgerTxn{txn}) })
}

func (e *engine) Close() error {
	return e.db.Close()
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) Get(key string) ([]byte, bool, error) {
	item, err := t.txn.Get([]byte(keyPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t badgerTxn) Put(key string, value []byte) error {
	return t.txn.Set([]byte(keyPrefix+key), value)
}

func (t badgerTxn) Delete(key string) error {
	return t.txn.Delete([]byte(keyPrefix + key))
}
