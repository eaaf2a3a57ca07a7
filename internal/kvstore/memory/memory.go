// Package memory provides an in-process key-value backend for tests and
// single-host lattices. Data does not survive the process.
package memory

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/gezibash/wasmbus/internal/kvstore"
	wberrors "github.com/gezibash/wasmbus/pkg/errors"
)

var errReadOnly = errors.New("write in read-only transaction")

func init() {
	kvstore.Register("mem", NewFactory, nil)
}

// NewFactory opens an empty store. The URL host and path are ignored.
func NewFactory(_ context.Context, _ *url.URL, _ map[string]string) (kvstore.Store, error) {
	return New(), nil
}

// New returns an empty in-memory store.
func New(opts ...kvstore.RecordOption) kvstore.Store {
	return kvstore.NewRecordStore(&engine{data: make(map[string][]byte)}, opts...)
}

type engine struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func (e *engine) View(ctx context.Context, fn func(kvstore.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return wberrors.ErrClosed
	}
	return fn(readTxn{e.data})
}

// Update applies writes only if fn succeeds.
func (e *engine) Update(ctx context.Context, fn func(kvstore.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return wberrors.ErrClosed
	}

	txn := &writeTxn{base: e.data, writes: make(map[string][]byte)}
	if err := fn(txn); err != nil {
		return err
	}
	for k, v := range txn.writes {
		if v == nil {
			delete(e.data, k)
			continue
		}
		e.data[k] = v
	}
	return nil
}

func (e *engine) Close() error {
	e.mu.Lock()
	e.closed = true
	clear(e.data)
	e.mu.Unlock()
	return nil
}

type readTxn struct {
	data map[string][]byte
}

func (t readTxn) Get(key string) ([]byte, bool, error) {
	v, ok := t.data[key]
	return v, ok, nil
}

func (readTxn) Put(string, []byte) error { return errReadOnly }

func (readTxn) Delete(string) error { return errReadOnly }

// writeTxn buffers writes; a nil value marks a delete.
type writeTxn struct {
	base   map[string][]byte
	writes map[string][]byte
}

func (t *writeTxn) Get(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, v != nil, nil
	}
	v, ok := t.base[key]
	return v, ok, nil
}

func (t *writeTxn) Put(key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	t.writes[key] = buf
	return nil
}

func (t *writeTxn) Delete(key string) error {
	t.writes[key] = nil
	return nil
}
