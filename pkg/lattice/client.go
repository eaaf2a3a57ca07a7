// Package lattice is a client for the lattice RPC protocol: it signs and
// performs invocations and manages link definitions, claims and reference
// maps over a transport.
package lattice

import (
	"context"
	"fmt"
	"time"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/transport"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// DefaultTimeout bounds each request the client makes.
const DefaultTimeout = 5 * time.Second

// Config configures a Client.
type Config struct {
	// Prefix is the lattice namespace (default "default").
	Prefix string
	// Signer is the host key invocations are signed with. It may be nil when
	// every invocation carries its own HostSeed.
	Signer  identity.Signer
	Timeout time.Duration
	Log     *logging.Logger
}

// Client talks to a lattice. It holds no per-call state and is safe for
// concurrent use.
type Client struct {
	tr      transport.Transport
	prefix  string
	signer  identity.Signer
	timeout time.Duration
	log     *logging.Logger
}

// New creates a client over tr. The client does not own tr.
func New(tr transport.Transport, cfg Config) (*Client, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: transport required", wberrors.ErrInvalidInput)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = wasmbus.DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		tr:      tr,
		prefix:  cfg.Prefix,
		signer:  cfg.Signer,
		timeout: cfg.Timeout,
		log:     log.WithComponent("lattice"),
	}, nil
}

// Prefix returns the lattice namespace the client addresses.
func (c *Client) Prefix() string { return c.prefix }

// InvocationRequest describes one call.
//
// A Namespace shaped like an actor key addresses that actor; anything else
// is a capability contract id served by ProviderKey.
type InvocationRequest struct {
	// ActorKey is the calling actor, or the caller's identity when a
	// provider calls an actor.
	ActorKey string
	// Binding is the link name (default "default").
	Binding   string
	Operation string
	Namespace string
	Payload   []byte

	// HostSeed overrides the client's signer for this call.
	HostSeed string
	// Prefix overrides the client's lattice prefix for this call.
	Prefix string
	// ProviderKey is the provider serving Namespace, or the calling
	// provider when Namespace is an actor.
	ProviderKey string
	// OriginContract is the calling provider's contract when a provider
	// calls an actor.
	OriginContract string
}

// route resolves origin, target and subject for req.
func route(req InvocationRequest, prefix string) (origin, target wasmbus.Entity, subject string) {
	binding := req.Binding
	if binding == "" {
		binding = wasmbus.DefaultLinkName
	}

	if wasmbus.IsActorKey(req.Namespace) {
		target = wasmbus.Actor{PublicKey: req.Namespace}
		if wasmbus.IsActorKey(req.ActorKey) {
			origin = wasmbus.Actor{PublicKey: req.ActorKey}
		} else {
			origin = wasmbus.Capability{ID: req.ProviderKey, ContractID: req.OriginContract, LinkName: binding}
		}
		return origin, target, wasmbus.ActorSubject(prefix, req.Namespace)
	}

	origin = wasmbus.Actor{PublicKey: req.ActorKey}
	target = wasmbus.Capability{ID: req.ProviderKey, ContractID: req.Namespace, LinkName: binding}
	return origin, target, wasmbus.ProviderSubject(prefix, req.ProviderKey, binding)
}

func (c *Client) signerFor(req InvocationRequest) (identity.Signer, error) {
	if req.HostSeed != "" {
		kp, err := nkey.FromSeed(req.HostSeed)
		if err != nil {
			return nil, fmt.Errorf("host seed: %w", err)
		}
		return kp, nil
	}
	if c.signer == nil {
		return nil, fmt.Errorf("%w: no host key configured", wberrors.ErrInvalidInput)
	}
	return c.signer, nil
}

// PerformInvocation signs and sends req and waits for the response.
//
// A returned error means the request could not be signed. Transport
// failures, timeouts and unusable replies are reported as a failure
// response carrying the invocation id.
func (c *Client) PerformInvocation(ctx context.Context, req InvocationRequest) (*wasmbus.InvocationResponse, error) {
	signer, err := c.signerFor(req)
	if err != nil {
		return nil, err
	}
	prefix := req.Prefix
	if prefix == "" {
		prefix = c.prefix
	}

	origin, target, subject := route(req, prefix)
	inv, err := wasmbus.NewInvocation(signer, origin, target, req.Operation, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("sign invocation: %w", err)
	}
	data, err := wasmbus.Serialize(inv)
	if err != nil {
		return nil, err
	}

	log := c.log.WithCorrelation(inv.ID)
	log.DebugContext(ctx, "performing invocation", "subject", subject, "operation", req.Operation)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.tr.Request(ctx, subject, data)
	if err != nil {
		log.WarnContext(ctx, "invocation failed", "subject", subject, "error", err)
		return wasmbus.Failure(inv.ID, fmt.Sprintf("RPC failure: %v", err)), nil
	}

	var resp wasmbus.InvocationResponse
	if err := wasmbus.Deserialize(reply, &resp); err != nil {
		return wasmbus.Failure(inv.ID, fmt.Sprintf("RPC failure: %v", err)), nil
	}
	if resp.InvocationID != inv.ID {
		return wasmbus.Failure(inv.ID, fmt.Sprintf("RPC failure: response for invocation %q does not match %q", resp.InvocationID, inv.ID)), nil
	}
	return &resp, nil
}

func (c *Client) publish(ctx context.Context, subject string, v any) error {
	data, err := wasmbus.Serialize(v)
	if err != nil {
		return err
	}
	if err := c.tr.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, subject string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.tr.Request(ctx, subject, []byte{})
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if out == nil {
		return nil
	}
	return wasmbus.Deserialize(reply, out)
}
