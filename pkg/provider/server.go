package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/gezibash/wasmbus/internal/middleware"
	"github.com/gezibash/wasmbus/internal/observability"
	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/transport"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// DefaultConcurrency is the number of invocations served at once.
const DefaultConcurrency = 64

// ErrShuttingDown is returned to invocations that arrive after shutdown began.
var ErrShuttingDown = errors.New("provider is shutting down")

// ServerConfig configures a provider server.
type ServerConfig[C io.Closer] struct {
	// Prefix is the lattice RPC prefix (default "default").
	Prefix string
	// ProviderKey is the provider's public key; invocations must target it.
	ProviderKey string
	// LinkName is the link this instance serves (default "default").
	LinkName string
	// ContractID, if set, must match the target of every invocation.
	ContractID string
	// ValidIssuers are the host keys allowed to sign invocations.
	ValidIssuers []string

	Transport  transport.Transport
	Registry   *Registry[C]
	Dispatcher *Dispatcher[C]
	// Metrics may be nil.
	Metrics *observability.Metrics
	Log     *logging.Logger
	// Hooks run around every dispatched invocation. May be nil.
	Hooks *middleware.Chain

	// Concurrency bounds in-flight invocations (default 64).
	Concurrency int
	// InstanceID is stamped on responses. Generated if empty.
	InstanceID string
}

// Server binds a registry and dispatcher to the provider's lattice subjects.
type Server[C io.Closer] struct {
	prefix       string
	providerKey  string
	linkName     string
	contractID   string
	validIssuers []string
	instanceID   string

	tr      transport.Transport
	reg     *Registry[C]
	disp    *Dispatcher[C]
	metrics *observability.Metrics
	log     *logging.Logger
	hooks   *middleware.Chain
	sem     chan struct{}

	mu       sync.Mutex
	running  bool
	draining bool
	inflight sync.WaitGroup
	subs     []transport.Subscription

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServer validates cfg and creates a server. It does not subscribe
// until Run.
func NewServer[C io.Closer](cfg ServerConfig[C]) (*Server[C], error) {
	if cfg.ProviderKey == "" {
		return nil, fmt.Errorf("%w: provider key required", wberrors.ErrInvalidInput)
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("%w: transport required", wberrors.ErrInvalidInput)
	}
	if cfg.Registry == nil || cfg.Dispatcher == nil {
		return nil, fmt.Errorf("%w: registry and dispatcher required", wberrors.ErrInvalidInput)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = wasmbus.DefaultPrefix
	}
	if cfg.LinkName == "" {
		cfg.LinkName = wasmbus.DefaultLinkName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}

	return &Server[C]{
		prefix:       cfg.Prefix,
		providerKey:  cfg.ProviderKey,
		linkName:     cfg.LinkName,
		contractID:   cfg.ContractID,
		validIssuers: cfg.ValidIssuers,
		instanceID:   cfg.InstanceID,
		tr:           cfg.Transport,
		reg:          cfg.Registry,
		disp:         cfg.Dispatcher,
		metrics:      cfg.Metrics,
		log:          log.WithComponent("provider").WithKey("provider", cfg.ProviderKey),
		hooks:        cfg.Hooks,
		sem:          make(chan struct{}, cfg.Concurrency),
		stop:         make(chan struct{}),
	}, nil
}

// InstanceID identifies this server instance in responses.
func (s *Server[C]) InstanceID() string { return s.instanceID }

// Run subscribes to the provider subjects and blocks until ctx is
// cancelled, a shutdown request arrives, or Halt is called. It then drains
// in-flight invocations and closes the registry.
func (s *Server[C]) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("provider server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.subscribe(); err != nil {
		return errors.Join(err, s.shutdown())
	}

	s.log.Info("provider started",
		"prefix", s.prefix,
		"link_name", s.linkName,
		"instance", s.instanceID,
		"concurrency", cap(s.sem),
	)

	select {
	case <-ctx.Done():
		s.log.Info("context cancelled, shutting down")
	case <-s.stop:
		s.log.Info("shutdown requested")
	}
	return s.shutdown()
}

func (s *Server[C]) subscribe() error {
	rpc := wasmbus.ProviderSubject(s.prefix, s.providerKey, s.linkName)
	get := wasmbus.LinkDefsGetSubject(s.prefix, s.providerKey, s.linkName)

	type binding struct {
		subject string
		queue   string
		handler transport.Handler
	}
	bindings := []binding{
		{rpc, rpc, s.handleRPC},
		{wasmbus.LinkDefsPutSubject(s.prefix, s.providerKey, s.linkName), "", s.handleLinkPut},
		{wasmbus.LinkDefsDelSubject(s.prefix, s.providerKey, s.linkName), "", s.handleLinkDel},
		{get, get, s.handleLinkGet},
		{wasmbus.ShutdownSubject(s.prefix, s.providerKey, s.linkName), "", s.handleShutdown},
		{wasmbus.HealthSubject(s.prefix, s.providerKey, s.linkName), "", s.handleHealth},
	}

	for _, b := range bindings {
		var (
			sub transport.Subscription
			err error
		)
		if b.queue != "" {
			sub, err = s.tr.QueueSubscribe(b.subject, b.queue, b.handler)
		} else {
			sub, err = s.tr.Subscribe(b.subject, b.handler)
		}
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", b.subject, err)
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
		s.log.Debug("subscribed", "subject", b.subject, "queue", b.queue)
	}
	return nil
}

// Halt stops the server when inv is a valid halt invocation signed by a
// trusted host.
func (s *Server[C]) Halt(inv *wasmbus.Invocation) error {
	if err := inv.Validate(s.validIssuers); err != nil {
		return err
	}
	if !inv.IsHalt() {
		return fmt.Errorf("%w: not a halt invocation", wberrors.ErrInvalidInput)
	}
	s.requestStop()
	return nil
}

func (s *Server[C]) requestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// shutdown refuses new invocations, unsubscribes, waits for in-flight
// invocations and closes the registry.
func (s *Server[C]) shutdown() error {
	s.mu.Lock()
	s.draining = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Subject(), err))
		}
	}

	s.inflight.Wait()

	if err := s.reg.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}
	s.log.Info("provider stopped")
	return errors.Join(errs...)
}

// begin registers an in-flight invocation unless the server is draining.
func (s *Server[C]) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Healthy reports whether the server is accepting invocations.
func (s *Server[C]) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.draining
}

func (s *Server[C]) isDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

func (s *Server[C]) handleRPC(ctx context.Context, msg *transport.Message) {
	if !s.begin() {
		var inv wasmbus.Invocation
		_ = wasmbus.Deserialize(msg.Data, &inv)
		s.respond(msg, wasmbus.Failure(inv.ID, ErrShuttingDown.Error()))
		return
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.inflight.Done()
		return
	}

	go func() {
		defer s.inflight.Done()
		defer func() { <-s.sem }()
		s.respond(msg, s.serve(ctx, msg.Data))
	}()
}

// serve validates one encoded invocation and dispatches it.
func (s *Server[C]) serve(ctx context.Context, data []byte) *wasmbus.InvocationResponse {
	var inv wasmbus.Invocation
	if err := wasmbus.Deserialize(data, &inv); err != nil {
		s.log.Warn("undecodable invocation", "error", err)
		return wasmbus.Failure("", err.Error())
	}
	log := s.log.WithCorrelation(inv.ID)

	if err := inv.Validate(s.validIssuers); err != nil {
		var verr *wasmbus.ValidationError
		if errors.As(err, &verr) {
			s.metrics.ValidationFailed(string(verr.Reason))
		}
		log.Warn("rejected invocation", "operation", inv.Operation, "error", err)
		return s.stamp(wasmbus.Failure(inv.ID, err.Error()))
	}

	target, ok := inv.Target.(wasmbus.Capability)
	if !ok || target.ID != s.providerKey || target.LinkName != s.linkName ||
		(s.contractID != "" && target.ContractID != s.contractID) {
		log.Warn("invocation addressed to another target", "target", inv.TargetURL())
		return s.stamp(wasmbus.Failure(inv.ID, fmt.Sprintf("invocation target %s is not served by this provider", inv.TargetURL())))
	}

	origin, ok := inv.Origin.(wasmbus.Actor)
	if !ok {
		return s.stamp(wasmbus.Failure(inv.ID, fmt.Sprintf("invocation origin %s is not an actor", inv.OriginURL())))
	}

	info := &middleware.CallInfo{
		InvocationID: inv.ID,
		Operation:    inv.Operation,
		ActorKey:     origin.PublicKey,
		LinkName:     s.linkName,
	}
	ctx, err := s.hooks.RunPre(ctx, info)
	if err != nil {
		log.Info("invocation rejected by hook", "operation", inv.Operation, "error", err)
		return s.stamp(wasmbus.Failure(inv.ID, err.Error()))
	}

	log.Debug("dispatching", "operation", inv.Operation, "actor", origin.PublicKey)
	resp := s.disp.Dispatch(ctx, inv.ID, inv.Operation, origin.PublicKey, inv.Msg)

	info.Err = resp.Err()
	if _, err := s.hooks.RunPost(ctx, info); err != nil {
		log.Warn("post hook failed", "operation", inv.Operation, "error", err)
	}
	return s.stamp(resp)
}

func (s *Server[C]) stamp(resp *wasmbus.InvocationResponse) *wasmbus.InvocationResponse {
	resp.InstanceID = s.instanceID
	return resp
}

func (s *Server[C]) respond(msg *transport.Message, resp *wasmbus.InvocationResponse) {
	data, err := wasmbus.Serialize(resp)
	if err != nil {
		s.log.Error("encode response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil && !errors.Is(err, transport.ErrNoReply) {
		s.log.Warn("send response", "invocation", resp.InvocationID, "error", err)
	}
}

func (s *Server[C]) handleLinkPut(ctx context.Context, msg *transport.Message) {
	var ld wasmbus.LinkDefinition
	if err := wasmbus.Deserialize(msg.Data, &ld); err != nil {
		s.log.Warn("undecodable link definition", "error", err)
		return
	}
	if !s.ownsLink(ld) {
		return
	}
	added, err := s.reg.Put(ctx, ld)
	switch {
	case err != nil:
		s.log.Error("link actor", "actor", ld.ActorID, "error", err)
	case added:
		s.log.Info("linked actor", "actor", ld.ActorID, "links", s.reg.Len())
	default:
		s.log.Debug("actor already linked", "actor", ld.ActorID)
	}
}

func (s *Server[C]) handleLinkDel(ctx context.Context, msg *transport.Message) {
	var ld wasmbus.LinkDefinition
	if err := wasmbus.Deserialize(msg.Data, &ld); err != nil {
		s.log.Warn("undecodable link definition", "error", err)
		return
	}
	if !s.ownsLink(ld) {
		return
	}
	removed, err := s.reg.Del(ctx, ld.ActorID)
	switch {
	case err != nil:
		s.log.Error("unlink actor", "actor", ld.ActorID, "error", err)
	case removed:
		s.log.Info("unlinked actor", "actor", ld.ActorID, "links", s.reg.Len())
	}
}

// ownsLink reports whether ld is addressed to this provider and link.
// Empty fields are treated as matching.
func (s *Server[C]) ownsLink(ld wasmbus.LinkDefinition) bool {
	if ld.ProviderID != "" && ld.ProviderID != s.providerKey {
		return false
	}
	if ld.LinkName != "" && ld.LinkName != s.linkName {
		return false
	}
	return true
}

func (s *Server[C]) handleLinkGet(_ context.Context, msg *transport.Message) {
	data, err := wasmbus.Serialize(wasmbus.LinkDefinitionList{LinkDefinitions: s.reg.Links()})
	if err != nil {
		s.log.Error("encode link definitions", "error", err)
		return
	}
	_ = msg.Respond(data)
}

func (s *Server[C]) handleShutdown(_ context.Context, msg *transport.Message) {
	s.log.Info("received shutdown request")
	if msg.Reply != "" {
		_ = msg.Respond([]byte{})
	}
	s.requestStop()
}

func (s *Server[C]) handleHealth(_ context.Context, msg *transport.Message) {
	resp := wasmbus.HealthResponse{Healthy: true, Message: fmt.Sprintf("%d links", s.reg.Len())}
	if s.isDraining() {
		resp = wasmbus.HealthResponse{Healthy: false, Message: ErrShuttingDown.Error()}
	}
	data, err := wasmbus.Serialize(resp)
	if err != nil {
		s.log.Error("encode health response", "error", err)
		return
	}
	_ = msg.Respond(data)
}
