// Package kvstoretest provides a conformance suite shared by kvstore backends.
package kvstoretest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gezibash/wasmbus/internal/kvstore"
	wberrors "github.com/gezibash/wasmbus/pkg/errors"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) kvstore.Store

// Run exercises open against Redis semantics.
func Run(t *testing.T, open Opener) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s kvstore.Store)
	}{
		{"Strings", testStrings},
		{"Expiry", testExpiry},
		{"Incr", testIncr},
		{"Lists", testLists},
		{"Sets", testSets},
		{"WrongType", testWrongType},
		{"ConcurrentIncr", testConcurrentIncr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
	t.Run("Closed", func(t *testing.T) {
		s := open(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, wberrors.ErrClosed) {
			t.Errorf("Get after Close err = %v, want ErrClosed", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	})
}

func testStrings(t *testing.T, s kvstore.Store) {
	ctx := context.Background()

	if v, ok, err := s.Get(ctx, "missing"); err != nil || ok || v != "" {
		t.Fatalf("Get(missing) = %q, %v, %v", v, ok, err)
	}
	if err := s.Set(ctx, "k", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2", 0); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, ok, err := s.Get(ctx, "k"); err != nil || !ok || v != "v2" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if ok, err := s.Exists(ctx, "k"); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if existed, err := s.Del(ctx, "k"); err != nil || !existed {
		t.Fatalf("Del = %v, %v", existed, err)
	}
	if existed, err := s.Del(ctx, "k"); err != nil || existed {
		t.Fatalf("second Del = %v, %v", existed, err)
	}
	if ok, err := s.Exists(ctx, "k"); err != nil || ok {
		t.Fatalf("Exists after Del = %v, %v", ok, err)
	}
	if err := s.Set(ctx, "empty", "", 0); err != nil {
		t.Fatalf("Set empty: %v", err)
	}
	if v, ok, err := s.Get(ctx, "empty"); err != nil || !ok || v != "" {
		t.Fatalf("Get(empty) = %q, %v, %v", v, ok, err)
	}
}

func testExpiry(t *testing.T, s kvstore.Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "short", "v", 100*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "long", "v", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "short"); !ok {
		t.Fatal("short-lived key missing before expiry")
	}
	time.Sleep(300 * time.Millisecond)
	if _, ok, err := s.Get(ctx, "short"); err != nil || ok {
		t.Errorf("Get(short) after expiry = %v, %v", ok, err)
	}
	if ok, err := s.Exists(ctx, "short"); err != nil || ok {
		t.Errorf("Exists(short) after expiry = %v, %v", ok, err)
	}
	if _, ok, _ := s.Get(ctx, "long"); !ok {
		t.Error("long-lived key expired early")
	}
}

func testIncr(t *testing.T, s kvstore.Store) {
	ctx := context.Background()

	if n, err := s.Incr(ctx, "counter", 5); err != nil || n != 5 {
		t.Fatalf("Incr(missing, 5) = %d, %v", n, err)
	}
	if n, err := s.Incr(ctx, "counter", -7); err != nil || n != -2 {
		t.Fatalf("Incr(-7) = %d, %v", n, err)
	}
	if v, _, _ := s.Get(ctx, "counter"); v != "-2" {
		t.Errorf("Get(counter) = %q", v)
	}
	if err := s.Set(ctx, "text", "abc", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Incr(ctx, "text", 1); !errors.Is(err, kvstore.ErrNotInteger) {
		t.Errorf("Incr(text) err = %v, want ErrNotInteger", err)
	}
}

func testLists(t *testing.T, s kvstore.Store) {
	ctx := context.Background()

	for i, v := range []string{"a", "b", "a", "c"} {
		n, err := s.ListPush(ctx, "l", v)
		if err != nil || n != int64(i+1) {
			t.Fatalf("ListPush(%q) = %d, %v", v, n, err)
		}
	}
	ranges := []struct {
		start, stop int64
		want        []string
	}{
		{0, -1, []string{"c", "a", "b", "a"}},
		{0, 1, []string{"c", "a"}},
		{-2, -1, []string{"b", "a"}},
		{1, 100, []string{"a", "b", "a"}},
		{3, 1, []string{}},
		{10, 20, []string{}},
	}
	for _, r := range ranges {
		got, err := s.ListRange(ctx, "l", r.start, r.stop)
		if err != nil {
			t.Fatalf("ListRange(%d, %d): %v", r.start, r.stop, err)
		}
		if !slices.Equal(got, r.want) {
			t.Errorf("ListRange(%d, %d) = %v, want %v", r.start, r.stop, got, r.want)
		}
	}

	if n, err := s.ListRemove(ctx, "l", "a"); err != nil || n != 2 {
		t.Fatalf("ListRemove(a) = %d, %v", n, err)
	}
	if n, err := s.ListRemove(ctx, "l", "zzz"); err != nil || n != 0 {
		t.Fatalf("ListRemove(zzz) = %d, %v", n, err)
	}
	if got, _ := s.ListRange(ctx, "l", 0, -1); !slices.Equal(got, []string{"c", "b"}) {
		t.Errorf("list after remove = %v", got)
	}
	if got, err := s.ListRange(ctx, "nolist", 0, -1); err != nil || len(got) != 0 {
		t.Errorf("ListRange(missing) = %v, %v", got, err)
	}

	_, _ = s.ListRemove(ctx, "l", "c")
	_, _ = s.ListRemove(ctx, "l", "b")
	if ok, _ := s.Exists(ctx, "l"); ok {
		t.Error("emptied list still exists")
	}
}

func testSets(t *testing.T, s kvstore.Store) {
	ctx := context.Background()

	add := func(key string, members ...string) {
		t.Helper()
		for _, m := range members {
			if _, err := s.SetAdd(ctx, key, m); err != nil {
				t.Fatalf("SetAdd(%s, %s): %v", key, m, err)
			}
		}
	}
	if n, err := s.SetAdd(ctx, "s1", "x"); err != nil || n != 1 {
		t.Fatalf("SetAdd new = %d, %v", n, err)
	}
	if n, err := s.SetAdd(ctx, "s1", "x"); err != nil || n != 0 {
		t.Fatalf("SetAdd duplicate = %d, %v", n, err)
	}
	add("s1", "y", "z")
	add("s2", "y", "z", "w")
	add("s3", "z", "q")

	tests := []struct {
		name string
		fn   func() ([]string, error)
		want []string
	}{
		{"members", func() ([]string, error) { return s.SetMembers(ctx, "s1") }, []string{"x", "y", "z"}},
		{"union", func() ([]string, error) { return s.SetUnion(ctx, "s1", "s3") }, []string{"q", "x", "y", "z"}},
		{"union with missing", func() ([]string, error) { return s.SetUnion(ctx, "s3", "nope") }, []string{"q", "z"}},
		{"intersection", func() ([]string, error) { return s.SetIntersect(ctx, "s1", "s2") }, []string{"y", "z"}},
		{"intersection of three", func() ([]string, error) { return s.SetIntersect(ctx, "s1", "s2", "s3") }, []string{"z"}},
		{"intersection with missing", func() ([]string, error) { return s.SetIntersect(ctx, "s1", "nope") }, []string{}},
		{"members of missing", func() ([]string, error) { return s.SetMembers(ctx, "nope") }, []string{}},
	}
	for _, tt := range tests {
		got, err := tt.fn()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if n, err := s.SetRemove(ctx, "s3", "q"); err != nil || n != 1 {
		t.Fatalf("SetRemove = %d, %v", n, err)
	}
	if n, err := s.SetRemove(ctx, "s3", "q"); err != nil || n != 0 {
		t.Fatalf("SetRemove again = %d, %v", n, err)
	}
	_, _ = s.SetRemove(ctx, "s3", "z")
	if ok, _ := s.Exists(ctx, "s3"); ok {
		t.Error("emptied set still exists")
	}
}

func testWrongType(t *testing.T, s kvstore.Store) {
	ctx := context.Background()

	if _, err := s.ListPush(ctx, "list", "a"); err != nil {
		t.Fatalf("ListPush: %v", err)
	}
	if _, err := s.SetAdd(ctx, "set", "a"); err != nil {
		t.Fatalf("SetAdd: %v", err)
	}
	checks := map[string]error{}
	_, _, checks["Get(list)"] = s.Get(ctx, "list")
	_, checks["Incr(list)"] = s.Incr(ctx, "list", 1)
	_, checks["SetAdd(list)"] = s.SetAdd(ctx, "list", "b")
	_, checks["ListPush(set)"] = s.ListPush(ctx, "set", "b")
	_, checks["SetUnion(list)"] = s.SetUnion(ctx, "set", "list")
	for name, err := range checks {
		if !errors.Is(err, kvstore.ErrWrongType) {
			t.Errorf("%s err = %v, want ErrWrongType", name, err)
		}
	}

	if err := s.Set(ctx, "list", "now a string", 0); err != nil {
		t.Fatalf("Set over list: %v", err)
	}
	if v, ok, err := s.Get(ctx, "list"); err != nil || !ok || v != "now a string" {
		t.Errorf("Get after overwrite = %q, %v, %v", v, ok, err)
	}
}

func testConcurrentIncr(t *testing.T, s kvstore.Store) {
	ctx := context.Background()
	const workers, per = 8, 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*per)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				if _, err := s.Incr(ctx, "hits", 1); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Incr: %v", err)
	}
	if v, _, _ := s.Get(ctx, "hits"); v != "200" {
		t.Errorf("hits = %q, want 200", v)
	}
}
