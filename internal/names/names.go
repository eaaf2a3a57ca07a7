// Package names manages local name-to-key mappings.
//
// The names file (names.json in the data directory) maps @names to actor
// and provider public keys so CLI flags can say @echo instead of a
// 56-character key.
package names

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

const (
	// Filename is the names file name within the data directory.
	Filename = "names.json"
)

var (
	ErrNotFound    = errors.New("name not found")
	ErrInvalidName = errors.New("invalid name")
	ErrInvalidKey  = errors.New("not an actor or provider key")
)

// Entry represents a name entry.
type Entry struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Kind reports whether the entry names an actor or a provider.
func (e Entry) Kind() string {
	if wasmbus.IsActorKey(e.Key) {
		return "actor"
	}
	return "provider"
}

// Store manages name-to-key mappings stored locally.
type Store struct {
	path    string
	entries map[string]string // name -> key
	mu      sync.RWMutex
}

// New creates a name store using the given data directory.
func New(dataDir string) *Store {
	return &Store{
		path:    filepath.Join(dataDir, Filename),
		entries: make(map[string]string),
	}
}

// Open creates a store and loads it from disk.
func Open(dataDir string) (*Store, error) {
	s := New(dataDir)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the names from disk. A missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = make(map[string]string)
			return nil
		}
		return fmt.Errorf("read names: %w", err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse names: %w", err)
	}
	s.entries = entries
	return nil
}

// Save writes the names to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal names: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write names: %w", err)
	}
	return nil
}

// Add adds or updates an entry. Name may carry the @ prefix.
func (s *Store) Add(name, key string) error {
	name = normalizeName(name)
	if name == "" || strings.ContainsAny(name, " \t@.") {
		return ErrInvalidName
	}
	if !IsValidKey(key) {
		return ErrInvalidKey
	}

	s.mu.Lock()
	s.entries[name] = key
	s.mu.Unlock()

	return s.Save()
}

// Remove deletes an entry by name.
func (s *Store) Remove(name string) error {
	name = normalizeName(name)

	s.mu.Lock()
	if _, ok := s.entries[name]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.entries, name)
	s.mu.Unlock()

	return s.Save()
}

// Lookup returns the key for a name, or ErrNotFound.
func (s *Store) Lookup(name string) (string, error) {
	name = normalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.entries[name]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

// List returns all entries sorted by name.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.entries))
	for name, key := range s.entries {
		entries = append(entries, Entry{Name: name, Key: key})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Resolve returns the key for "@name" arguments and any other value unchanged.
func (s *Store) Resolve(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	key, err := s.Lookup(arg)
	if err != nil {
		return "", fmt.Errorf("%s: %w", arg, err)
	}
	return key, nil
}

// IsValidKey reports whether s is an actor or provider public key.
func IsValidKey(s string) bool {
	return wasmbus.IsActorKey(s) || wasmbus.IsProviderKey(s)
}

// normalizeName strips the @ prefix and lowercases.
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "@")
	return strings.ToLower(name)
}
