// Package cache keeps the lattice-wide actor claims and reference maps and
// answers queries for them.
//
// Every replica records every put; queries are answered by one replica of
// the queue group. Entries are never expired, and the latest put for a
// claims subject or reference wins.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/transport"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// QueueGroup is shared by all cache replicas on a lattice.
const QueueGroup = "wasmbus.cache"

// Config configures a Cache.
type Config struct {
	Prefix string
	Log    *logging.Logger
}

// Cache is a claims and reference-map responder.
type Cache struct {
	tr     transport.Transport
	prefix string
	log    *logging.Logger

	mu      sync.RWMutex
	claims  map[string]wasmbus.ActorClaims
	refmaps map[string]wasmbus.ReferenceMap
	subs    []transport.Subscription
}

// New creates an empty cache. Call Start to attach it to the lattice.
func New(tr transport.Transport, cfg Config) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = wasmbus.DefaultPrefix
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Cache{
		tr:      tr,
		prefix:  cfg.Prefix,
		log:     log.WithComponent("cache"),
		claims:  make(map[string]wasmbus.ActorClaims),
		refmaps: make(map[string]wasmbus.ReferenceMap),
	}
}

// Start subscribes to the claims and reference-map subjects.
func (c *Cache) Start() error {
	type binding struct {
		subject, queue string
		h              transport.Handler
	}
	bindings := []binding{
		{wasmbus.ClaimsPutSubject(c.prefix), "", c.handleClaimsPut},
		{wasmbus.RefMapsPutSubject(c.prefix), "", c.handleRefMapPut},
		{wasmbus.ClaimsGetSubject(c.prefix), QueueGroup, c.handleClaimsGet},
		{wasmbus.RefMapsGetSubject(c.prefix), QueueGroup, c.handleRefMapsGet},
	}
	for _, b := range bindings {
		var (
			sub transport.Subscription
			err error
		)
		if b.queue == "" {
			sub, err = c.tr.Subscribe(b.subject, b.h)
		} else {
			sub, err = c.tr.QueueSubscribe(b.subject, b.queue, b.h)
		}
		if err != nil {
			return errors.Join(fmt.Errorf("subscribe %s: %w", b.subject, err), c.Close())
		}
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}
	c.log.Info("cache started", "prefix", c.prefix)
	return nil
}

// PutClaims records claims, replacing any entry for the same subject.
func (c *Cache) PutClaims(claims wasmbus.ActorClaims) {
	c.mu.Lock()
	c.claims[claims.Subject] = claims
	c.mu.Unlock()
}

// PutReferenceMap records an alias, replacing any entry for the same reference.
func (c *Cache) PutReferenceMap(rm wasmbus.ReferenceMap) {
	c.mu.Lock()
	c.refmaps[wasmbus.ReferenceKey(rm.Kind)] = rm
	c.mu.Unlock()
}

// Claims returns cached claims ordered by subject.
func (c *Cache) Claims() []wasmbus.ActorClaims {
	c.mu.RLock()
	out := make([]wasmbus.ActorClaims, 0, len(c.claims))
	for _, cl := range c.claims {
		out = append(out, cl)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b wasmbus.ActorClaims) int { return strings.Compare(a.Subject, b.Subject) })
	return out
}

// ReferenceMaps returns cached reference maps ordered by reference.
func (c *Cache) ReferenceMaps() []wasmbus.ReferenceMap {
	c.mu.RLock()
	out := make([]wasmbus.ReferenceMap, 0, len(c.refmaps))
	for _, rm := range c.refmaps {
		out = append(out, rm)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b wasmbus.ReferenceMap) int {
		return strings.Compare(wasmbus.ReferenceKey(a.Kind), wasmbus.ReferenceKey(b.Kind))
	})
	return out
}

func (c *Cache) handleClaimsPut(_ context.Context, msg *transport.Message) {
	var claims wasmbus.ActorClaims
	if err := wasmbus.Deserialize(msg.Data, &claims); err != nil {
		c.log.Warn("undecodable claims", "error", err)
		return
	}
	if claims.Subject == "" {
		c.log.Warn("claims without subject")
		return
	}
	c.PutClaims(claims)
	c.log.Debug("cached claims", "subject", claims.Subject)
}

func (c *Cache) handleRefMapPut(_ context.Context, msg *transport.Message) {
	var rm wasmbus.ReferenceMap
	if err := wasmbus.Deserialize(msg.Data, &rm); err != nil {
		c.log.Warn("undecodable reference map", "error", err)
		return
	}
	if rm.Kind == nil || rm.Target == nil {
		c.log.Warn("incomplete reference map")
		return
	}
	c.PutReferenceMap(rm)
	c.log.Debug("cached reference map", "reference", wasmbus.ReferenceKey(rm.Kind), "target", rm.Target.URL())
}

func (c *Cache) handleClaimsGet(_ context.Context, msg *transport.Message) {
	c.reply(msg, wasmbus.ClaimsList{Claims: c.Claims()})
}

func (c *Cache) handleRefMapsGet(_ context.Context, msg *transport.Message) {
	c.reply(msg, wasmbus.ReferenceMapList{ReferenceMaps: c.ReferenceMaps()})
}

func (c *Cache) reply(msg *transport.Message, v any) {
	data, err := wasmbus.Serialize(v)
	if err != nil {
		c.log.Error("encode reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		c.log.Warn("send reply", "subject", msg.Subject, "error", err)
	}
}

// Close unsubscribes from the lattice. Cached entries remain readable.
func (c *Cache) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
