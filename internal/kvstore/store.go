// Package kvstore defines the backing-store contract of the key-value
// capability and a URL-scheme registry of its backends.
//
// A Store is opened per linked actor and is exclusive to it. Every backend
// follows Redis semantics for the subset of commands the capability needs.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWrongType indicates an operation against a key holding another kind of value.
	ErrWrongType = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")
	// ErrNotInteger indicates an increment of a value that is not a base-10 integer.
	ErrNotInteger = errors.New("value is not an integer or out of range")
)

// Store is a key-value backing store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the string at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a string, replacing any value of any kind. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes key and reports whether it existed.
	Del(ctx context.Context, key string) (bool, error)
	// Exists reports whether key holds a value of any kind.
	Exists(ctx context.Context, key string) (bool, error)
	// Incr adds delta to the integer at key, treating a missing key as 0.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// ListPush prepends value and returns the new length.
	ListPush(ctx context.Context, key, value string) (int64, error)
	// ListRange returns elements start..stop inclusive; negative indexes count from the end.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// ListRemove removes every occurrence of value and returns how many were removed.
	ListRemove(ctx context.Context, key, value string) (int64, error)

	// SetAdd adds member and returns 1 if it was new.
	SetAdd(ctx context.Context, key, member string) (int64, error)
	// SetRemove removes member and returns 1 if it was present.
	SetRemove(ctx context.Context, key, member string) (int64, error)
	// SetUnion returns the members of any of keys.
	SetUnion(ctx context.Context, keys ...string) ([]string, error)
	// SetIntersect returns the members present in all of keys.
	SetIntersect(ctx context.Context, keys ...string) ([]string, error)
	// SetMembers returns the members of key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	Close() error
}

// ListBounds resolves Redis-style inclusive range indexes against a list of
// length n. ok is false when the range selects nothing.
func ListBounds(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
