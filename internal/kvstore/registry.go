package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gezibash/wasmbus/internal/observability"
	"github.com/gezibash/wasmbus/internal/storage"
)

// Factory opens a store from a parsed URL and its merged options.
type Factory func(ctx context.Context, u *url.URL, config map[string]string) (Store, error)

// DefaultsFunc returns the default options for a backend.
type DefaultsFunc func() map[string]string

type backendEntry struct {
	Factory  Factory
	Defaults DefaultsFunc
}

var (
	backends   = make(map[string]backendEntry)
	backendsMu sync.RWMutex
)

// Register makes a backend available under a URL scheme.
// Panics if the scheme is already registered.
func Register(scheme string, factory Factory, defaults DefaultsFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[scheme]; exists {
		panic(fmt.Sprintf("kvstore backend %q already registered", scheme))
	}
	backends[scheme] = backendEntry{Factory: factory, Defaults: defaults}
}

// Schemes returns the registered URL schemes.
func Schemes() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend serves scheme.
func IsRegistered(scheme string) bool {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	_, ok := backends[scheme]
	return ok
}

// Open opens a store for rawURL. Query parameters override the backend's
// defaults. metrics may be nil.
func Open(ctx context.Context, rawURL string, metrics *observability.Metrics) (store Store, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, storage.OpenFailed("kvstore", "url", "cannot parse connection url", err)
	}

	op, ctx := observability.StartOperation(ctx, metrics, "kvstore.open", attribute.String("scheme", u.Scheme))
	defer func() { op.End(err) }()

	backendsMu.RLock()
	entry, ok := backends[u.Scheme]
	backendsMu.RUnlock()
	if !ok {
		return nil, &storage.OptionError{
			Store:  "kvstore",
			Option: "scheme",
			Value:  u.Scheme,
			Reason: fmt.Sprintf("unsupported (available: %v)", Schemes()),
		}
	}

	var defaults map[string]string
	if entry.Defaults != nil {
		defaults = entry.Defaults()
	}
	config := storage.MergeConfig(defaults, storage.FromQuery(u.Query()))

	store, err = entry.Factory(ctx, u, config)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "kvstore opened", "url", u.Redacted())
	return store, nil
}
