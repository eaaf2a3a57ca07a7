package names

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const (
	actorKey    = "MB2ZQB6ROOMAYBO4ZCTFYWN7YIVBWA3MTKZYAQKJMTIHE2ELLRW2E3ZW"
	providerKey = "VAHNM37G4ARHZ3CYHB5L34M6TYHZ5EXHK5MJBP5UE5HVJNGXKHQMWTVQ"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load empty: %v", err)
	}

	if err := s.Add("@Echo", actorKey); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("kv", providerKey); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := reopened.Lookup("echo")
	if err != nil || got != actorKey {
		t.Errorf("Lookup(echo) = %q, %v", got, err)
	}

	list := reopened.List()
	if len(list) != 2 || list[0].Name != "echo" || list[1].Name != "kv" {
		t.Fatalf("List = %+v", list)
	}
	if list[0].Kind() != "actor" || list[1].Kind() != "provider" {
		t.Errorf("kinds = %s/%s", list[0].Kind(), list[1].Kind())
	}

	info, err := os.Stat(filepath.Join(dir, Filename))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("names file mode = %v", info.Mode().Perm())
	}
}

func TestStoreValidation(t *testing.T) {
	s := New(t.TempDir())
	tests := []struct {
		name, key string
		want      error
	}{
		{"", actorKey, ErrInvalidName},
		{"@", actorKey, ErrInvalidName},
		{"two words", actorKey, ErrInvalidName},
		{"a.b", actorKey, ErrInvalidName},
		{"echo", "not-a-key", ErrInvalidKey},
		{"host", "NB2ZQB6ROOMAYBO4ZCTFYWN7YIVBWA3MTKZYAQKJMTIHE2ELLRW2E3ZW", ErrInvalidKey},
	}
	for _, tt := range tests {
		if err := s.Add(tt.name, tt.key); !errors.Is(err, tt.want) {
			t.Errorf("Add(%q, %q) = %v, want %v", tt.name, tt.key, err, tt.want)
		}
	}
}

func TestRemove(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Add("echo", actorKey); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("@echo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Lookup("echo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after Remove = %v", err)
	}
	if err := s.Remove("echo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v", err)
	}
}

func TestResolve(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Add("echo", actorKey); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		arg, want string
		wantErr   bool
	}{
		{"@echo", actorKey, false},
		{"@ECHO", actorKey, false},
		{providerKey, providerKey, false},
		{"wasmcloud:keyvalue", "wasmcloud:keyvalue", false},
		{"", "", false},
		{"@missing", "", true},
	}
	for _, tt := range tests {
		got, err := s.Resolve(tt.arg)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v", tt.arg, got, err)
		}
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Filename), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir); err == nil {
		t.Error("Open of corrupt file succeeded")
	}
}
