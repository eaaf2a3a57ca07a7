package sqlite

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/gezibash/wasmbus/internal/kvstore"
	"github.com/gezibash/wasmbus/internal/kvstore/kvstoretest"
)

func TestConformanceInMemory(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T) kvstore.Store {
		s, err := NewFactory(context.Background(), &url.URL{Scheme: "sqlite", Host: "memory"}, Defaults())
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestConformanceOnDisk(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T) kvstore.Store {
		u := &url.URL{Scheme: "sqlite", Path: filepath.Join(t.TempDir(), "kv.db")}
		s, err := NewFactory(context.Background(), u, Defaults())
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	rawURL := "sqlite://" + filepath.Join(t.TempDir(), "nested", "kv.db")

	s, err := kvstore.Open(ctx, rawURL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.SetAdd(ctx, "s", "m"); err != nil {
		t.Fatalf("SetAdd: %v", err)
	}
	s.Close()

	s, err = kvstore.Open(ctx, rawURL, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got, err := s.SetMembers(ctx, "s"); err != nil || len(got) != 1 {
		t.Errorf("SetMembers after reopen = %v, %v", got, err)
	}
}
