package kvstore

import (
	"context"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
)

// Txn is a read or read-write transaction over raw key/value bytes.
type Txn interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Engine is an ordered byte store that runs transactions. Backends without
// native list and set types implement Engine and get Redis semantics from
// NewRecordStore.
type Engine interface {
	View(ctx context.Context, fn func(Txn) error) error
	Update(ctx context.Context, fn func(Txn) error) error
	Close() error
}

type kind uint8

const (
	kindString kind = iota + 1
	kindList
	kindSet
)

// record is the stored form of one key. Set members are kept sorted.
type record struct {
	Kind      kind     `msgpack:"kind"`
	String    string   `msgpack:"string,omitempty"`
	List      []string `msgpack:"list,omitempty"`
	Set       []string `msgpack:"set,omitempty"`
	ExpiresAt int64    `msgpack:"expires_at,omitempty"` // unix nanoseconds
}

// RecordOption configures a record store.
type RecordOption func(*recordStore)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) RecordOption {
	return func(s *recordStore) { s.now = now }
}

type recordStore struct {
	engine Engine
	now    func() time.Time
	closed atomic.Bool
}

// NewRecordStore layers strings, lists, sets and expiry over an Engine.
func NewRecordStore(engine Engine, opts ...RecordOption) Store {
	s := &recordStore{engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *recordStore) load(txn Txn, key string) (*record, error) {
	raw, ok, err := txn.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	var rec record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.ExpiresAt != 0 && s.now().UnixNano() >= rec.ExpiresAt {
		return nil, nil
	}
	return &rec, nil
}

func (s *recordStore) loadKind(txn Txn, key string, k kind) (*record, error) {
	rec, err := s.load(txn, key)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.Kind != k {
		return nil, ErrWrongType
	}
	return rec, nil
}

func store(txn Txn, key string, rec *record) error {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Put(key, raw)
}

func (s *recordStore) view(ctx context.Context, fn func(Txn) error) error {
	if s.closed.Load() {
		return wberrors.ErrClosed
	}
	return s.engine.View(ctx, fn)
}

func (s *recordStore) update(ctx context.Context, fn func(Txn) error) error {
	if s.closed.Load() {
		return wberrors.ErrClosed
	}
	return s.engine.Update(ctx, fn)
}

func (s *recordStore) Get(ctx context.Context, key string) (value string, found bool, err error) {
	err = s.view(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindString)
		if err != nil || rec == nil {
			return err
		}
		value, found = rec.String, true
		return nil
	})
	return value, found, err
}

func (s *recordStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	rec := &record{Kind: kindString, String: value}
	if ttl > 0 {
		rec.ExpiresAt = s.now().Add(ttl).UnixNano()
	}
	return s.update(ctx, func(txn Txn) error { return store(txn, key, rec) })
}

func (s *recordStore) Del(ctx context.Context, key string) (existed bool, err error) {
	err = s.update(ctx, func(txn Txn) error {
		rec, err := s.load(txn, key)
		if err != nil {
			return err
		}
		existed = rec != nil
		return txn.Delete(key)
	})
	return existed, err
}

func (s *recordStore) Exists(ctx context.Context, key string) (exists bool, err error) {
	err = s.view(ctx, func(txn Txn) error {
		rec, err := s.load(txn, key)
		exists = rec != nil
		return err
	})
	return exists, err
}

func (s *recordStore) Incr(ctx context.Context, key string, delta int64) (result int64, err error) {
	err = s.update(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindString)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &record{Kind: kindString, String: "0"}
		}
		n, err := strconv.ParseInt(rec.String, 10, 64)
		if err != nil {
			return ErrNotInteger
		}
		result = n + delta
		rec.String = strconv.FormatInt(result, 10)
		return store(txn, key, rec)
	})
	return result, err
}

func (s *recordStore) ListPush(ctx context.Context, key, value string) (length int64, err error) {
	err = s.update(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindList)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &record{Kind: kindList}
		}
		rec.List = slices.Insert(rec.List, 0, value)
		length = int64(len(rec.List))
		return store(txn, key, rec)
	})
	return length, err
}

func (s *recordStore) ListRange(ctx context.Context, key string, start, stop int64) (values []string, err error) {
	values = []string{}
	err = s.view(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindList)
		if err != nil || rec == nil {
			return err
		}
		lo, hi, ok := ListBounds(int64(len(rec.List)), start, stop)
		if ok {
			values = slices.Clone(rec.List[lo : hi+1])
		}
		return nil
	})
	return values, err
}

func (s *recordStore) ListRemove(ctx context.Context, key, value string) (removed int64, err error) {
	err = s.update(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindList)
		if err != nil || rec == nil {
			return err
		}
		before := len(rec.List)
		rec.List = slices.DeleteFunc(rec.List, func(v string) bool { return v == value })
		removed = int64(before - len(rec.List))
		switch {
		case removed == 0:
			return nil
		case len(rec.List) == 0:
			return txn.Delete(key)
		default:
			return store(txn, key, rec)
		}
	})
	return removed, err
}

func (s *recordStore) SetAdd(ctx context.Context, key, member string) (added int64, err error) {
	err = s.update(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindSet)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &record{Kind: kindSet}
		}
		i, found := slices.BinarySearch(rec.Set, member)
		if found {
			return nil
		}
		rec.Set = slices.Insert(rec.Set, i, member)
		added = 1
		return store(txn, key, rec)
	})
	return added, err
}

func (s *recordStore) SetRemove(ctx context.Context, key, member string) (removed int64, err error) {
	err = s.update(ctx, func(txn Txn) error {
		rec, err := s.loadKind(txn, key, kindSet)
		if err != nil || rec == nil {
			return err
		}
		i, found := slices.BinarySearch(rec.Set, member)
		if !found {
			return nil
		}
		rec.Set = slices.Delete(rec.Set, i, i+1)
		removed = 1
		if len(rec.Set) == 0 {
			return txn.Delete(key)
		}
		return store(txn, key, rec)
	})
	return removed, err
}

func (s *recordStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.SetUnion(ctx, key)
}

func (s *recordStore) SetUnion(ctx context.Context, keys ...string) (members []string, err error) {
	members = []string{}
	err = s.view(ctx, func(txn Txn) error {
		for _, key := range keys {
			rec, err := s.loadKind(txn, key, kindSet)
			if err != nil {
				return err
			}
			if rec != nil {
				members = append(members, rec.Set...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(members)
	return slices.Compact(members), nil
}

func (s *recordStore) SetIntersect(ctx context.Context, keys ...string) (members []string, err error) {
	members = []string{}
	if len(keys) == 0 {
		return members, nil
	}
	err = s.view(ctx, func(txn Txn) error {
		sets := make([][]string, 0, len(keys))
		for _, key := range keys {
			rec, err := s.loadKind(txn, key, kindSet)
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}
			sets = append(sets, rec.Set)
		}
		for _, m := range sets[0] {
			inAll := true
			for _, other := range sets[1:] {
				if _, found := slices.BinarySearch(other, m); !found {
					inAll = false
					break
				}
			}
			if inAll {
				members = append(members, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (s *recordStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.engine.Close()
}
