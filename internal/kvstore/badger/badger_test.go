package badger

import (
	"context"
	"net/url"
	"testing"

	"github.com/gezibash/wasmbus/internal/kvstore"
	"github.com/gezibash/wasmbus/internal/kvstore/kvstoretest"
)

func TestConformanceInMemory(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T) kvstore.Store {
		s, err := newInMemory()
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestConformanceOnDisk(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T) kvstore.Store {
		u := &url.URL{Scheme: "badger", Path: t.TempDir()}
		s, err := NewFactory(context.Background(), u, Defaults())
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	rawURL := "badger://" + t.TempDir()

	s, err := kvstore.Open(ctx, rawURL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.ListPush(ctx, "l", "a"); err != nil {
		t.Fatalf("ListPush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = kvstore.Open(ctx, rawURL, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.ListRange(ctx, "l", 0, -1)
	if err != nil || len(got) != 1 || got[0] != "a" {
		t.Errorf("ListRange after reopen = %v, %v", got, err)
	}
}

func TestInvalidOption(t *testing.T) {
	_, err := kvstore.Open(context.Background(), "badger://"+t.TempDir()+"?sync_writes=maybe", nil)
	if err == nil {
		t.Fatal("expected error for invalid sync_writes")
	}
}
