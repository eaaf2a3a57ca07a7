package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gezibash/wasmbus/internal/observability"
	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// DefaultTimeout bounds one operation against a backing connection.
const DefaultTimeout = 5 * time.Second

// These messages travel to the caller verbatim in the response error field.
var (
	ErrNoClient        = errors.New("No client for this actor. Did the host configure it?") //nolint:staticcheck
	ErrNoSuchOperation = errors.New("No such operation")                                    //nolint:staticcheck
)

// DecodeError reports an operation payload that could not be decoded into
// the operation's argument type.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// OpFunc executes one operation against an actor's connection and returns
// the encoded result.
type OpFunc[C any] func(ctx context.Context, conn C, payload []byte) ([]byte, error)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Timeout bounds each operation (default 5s).
	Timeout time.Duration
	// Metrics may be nil.
	Metrics *observability.Metrics
	Log     *logging.Logger
}

// Dispatcher routes operations to handlers using the calling actor's
// connection from the registry.
type Dispatcher[C io.Closer] struct {
	reg     *Registry[C]
	timeout time.Duration
	metrics *observability.Metrics
	log     *logging.Logger

	mu  sync.RWMutex
	ops map[string]OpFunc[C]
}

// NewDispatcher creates a dispatcher over reg with no operations.
func NewDispatcher[C io.Closer](reg *Registry[C], cfg DispatcherConfig) *Dispatcher[C] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Dispatcher[C]{
		reg:     reg,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		log:     log.WithComponent("dispatcher"),
		ops:     make(map[string]OpFunc[C]),
	}
}

// Register binds op to fn, replacing any previous binding.
func (d *Dispatcher[C]) Register(op string, fn OpFunc[C]) {
	d.mu.Lock()
	d.ops[op] = fn
	d.mu.Unlock()
}

// Operations returns the registered operation names.
func (d *Dispatcher[C]) Operations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.ops))
	for op := range d.ops {
		out = append(out, op)
	}
	return out
}

// Handle registers a typed operation. The payload is decoded into A and
// the result R is encoded with the lattice codec.
func Handle[C io.Closer, A, R any](d *Dispatcher[C], op string, fn func(ctx context.Context, conn C, args A) (R, error)) {
	d.Register(op, func(ctx context.Context, conn C, payload []byte) ([]byte, error) {
		var args A
		if err := wasmbus.Deserialize(payload, &args); err != nil {
			return nil, &DecodeError{Op: op, Err: err}
		}
		res, err := fn(ctx, conn, args)
		if err != nil {
			return nil, err
		}
		return wasmbus.Serialize(res)
	})
}

// Dispatch runs op for actorKey and builds the response for invocationID.
// Every failure becomes an error response.
func (d *Dispatcher[C]) Dispatch(ctx context.Context, invocationID, op, actorKey string, payload []byte) *wasmbus.InvocationResponse {
	start := time.Now()
	ctx, span := observability.StartDispatchSpan(ctx, invocationID, op, actorKey)

	msg, err := d.call(ctx, op, actorKey, payload)

	var errType string
	if err != nil {
		errType = errorType(err)
	}
	observability.EndSpan(span, errType, err)
	d.metrics.ObserveDispatch(op, time.Since(start), err)
	d.metrics.AddBytes("in", len(payload))

	if err != nil {
		d.log.WithCorrelation(invocationID).DebugContext(ctx, "operation failed",
			"operation", op, "actor", actorKey, "error", err)
		d.metrics.CountError(op, errType)
		return wasmbus.Failure(invocationID, err.Error())
	}
	d.metrics.AddBytes("out", len(msg))
	return wasmbus.Success(invocationID, msg)
}

func (d *Dispatcher[C]) call(ctx context.Context, op, actorKey string, payload []byte) (msg []byte, err error) {
	conn, ok := d.reg.Conn(actorKey)
	if !ok {
		return nil, ErrNoClient
	}

	d.mu.RLock()
	fn, ok := d.ops[op]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrNoSuchOperation
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("operation panicked", "operation", op, "panic", r)
			msg, err = nil, fmt.Errorf("operation %s panicked: %v", op, r)
		}
	}()

	msg, err = fn(ctx, conn, payload)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: operation %s exceeded %s", wberrors.ErrTimeout, op, d.timeout)
	}
	return msg, err
}

func errorType(err error) string {
	var decodeErr *DecodeError
	switch {
	case errors.Is(err, ErrNoClient):
		return "no_client"
	case errors.Is(err, ErrNoSuchOperation):
		return "no_such_operation"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, wberrors.ErrTimeout):
		return "timeout"
	default:
		return "operation"
	}
}
