// Package provider hosts a capability provider on a lattice: the per-actor
// link registry, the operation dispatcher, and the server that binds both
// to the provider's RPC and link-management subjects.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/gezibash/wasmbus/internal/observability"
	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// Opener creates the backing connection for a newly linked actor.
type Opener[C io.Closer] func(ctx context.Context, ld wasmbus.LinkDefinition) (C, error)

// Registry tracks which actors are linked to this provider and owns one
// backing connection per linked actor.
//
// An actor is either unlinked, pending while its connection opens, or
// linked with exactly one definition and one connection. Connections are
// opened and closed outside the lock.
type Registry[C io.Closer] struct {
	open    Opener[C]
	metrics *observability.Metrics

	mu      sync.RWMutex
	links   map[string]wasmbus.LinkDefinition
	conns   map[string]C
	pending map[string]uint64 // actor -> generation of the put opening it
	gen     uint64
	closed  bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	metrics *observability.Metrics
}

// WithRegistryMetrics reports the number of active links.
func WithRegistryMetrics(m *observability.Metrics) RegistryOption {
	return func(o *registryOptions) { o.metrics = m }
}

// NewRegistry creates an empty registry that opens connections with open.
func NewRegistry[C io.Closer](open Opener[C], opts ...RegistryOption) *Registry[C] {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[C]{
		open:    open,
		metrics: o.metrics,
		links:   make(map[string]wasmbus.LinkDefinition),
		conns:   make(map[string]C),
		pending: make(map[string]uint64),
	}
}

// Put links ld.ActorID and opens its connection. It reports false without
// touching the existing link when the actor is already linked or another
// put for it is still opening. A Del that arrives while the connection
// opens wins: the new connection is closed and the actor stays unlinked.
func (r *Registry[C]) Put(ctx context.Context, ld wasmbus.LinkDefinition) (bool, error) {
	if strings.TrimSpace(ld.ActorID) == "" {
		return false, fmt.Errorf("%w: link definition without actor id", wberrors.ErrInvalidInput)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, wberrors.ErrClosed
	}
	_, linked := r.links[ld.ActorID]
	_, opening := r.pending[ld.ActorID]
	if linked || opening {
		r.mu.Unlock()
		return false, nil
	}
	r.gen++
	gen := r.gen
	r.pending[ld.ActorID] = gen
	r.mu.Unlock()

	conn, err := r.open(ctx, ld)

	r.mu.Lock()
	current := r.pending[ld.ActorID] == gen
	if current {
		delete(r.pending, ld.ActorID)
	}
	if err != nil {
		r.mu.Unlock()
		return false, fmt.Errorf("open connection for actor %s: %w", ld.ActorID, err)
	}
	if !current {
		closed := r.closed
		r.mu.Unlock()
		_ = conn.Close()
		if closed {
			return false, wberrors.ErrClosed
		}
		return false, nil
	}
	r.links[ld.ActorID] = ld
	r.conns[ld.ActorID] = conn
	n := len(r.links)
	r.mu.Unlock()

	r.metrics.SetLinks(n)
	return true, nil
}

// Del unlinks actorID and closes its connection. A put still opening the
// connection is cancelled. It reports false if the actor was neither
// linked nor pending.
func (r *Registry[C]) Del(_ context.Context, actorID string) (bool, error) {
	r.mu.Lock()
	if _, opening := r.pending[actorID]; opening {
		delete(r.pending, actorID)
		r.mu.Unlock()
		return true, nil
	}
	conn, ok := r.conns[actorID]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.links, actorID)
	delete(r.conns, actorID)
	n := len(r.links)
	r.mu.Unlock()

	r.metrics.SetLinks(n)
	if err := conn.Close(); err != nil {
		return true, fmt.Errorf("close connection for actor %s: %w", actorID, err)
	}
	return true, nil
}

// Conn returns the connection of a linked actor.
func (r *Registry[C]) Conn(actorID string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[actorID]
	return c, ok
}

// Link returns the link definition of a linked actor.
func (r *Registry[C]) Link(actorID string) (wasmbus.LinkDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ld, ok := r.links[actorID]
	return ld, ok
}

// Links returns every link definition ordered by actor id.
func (r *Registry[C]) Links() []wasmbus.LinkDefinition {
	r.mu.RLock()
	out := make([]wasmbus.LinkDefinition, 0, len(r.links))
	for _, ld := range r.links {
		out = append(out, ld)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b wasmbus.LinkDefinition) int { return strings.Compare(a.ActorID, b.ActorID) })
	return out
}

// Len returns the number of linked actors.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

// Close unlinks every actor and closes all connections. Later puts fail
// with ErrClosed.
func (r *Registry[C]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conns := r.conns
	r.links = make(map[string]wasmbus.LinkDefinition)
	r.conns = make(map[string]C)
	r.pending = make(map[string]uint64)
	r.mu.Unlock()

	r.metrics.SetLinks(0)
	var errs []error
	for actor, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection for actor %s: %w", actor, err))
		}
	}
	return errors.Join(errs...)
}
