// Package nats implements transport.Transport over a NATS connection.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/transport"
)

// DefaultURL is the NATS server a lattice host exposes locally.
const DefaultURL = nats.DefaultURL

// Config holds connection settings.
type Config struct {
	URL     string
	Name    string
	Timeout time.Duration
	Log     *logging.Logger
}

// Transport wraps a *nats.Conn.
type Transport struct {
	nc     *nats.Conn
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

var _ transport.Transport = (*Transport)(nil)

// Connect dials the NATS server and reconnects indefinitely on loss.
func Connect(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = logging.New(nil)
	}
	log = log.WithComponent("nats")

	opts := []nats.Option{
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	log.Info("connected", "url", nc.ConnectedUrl())
	return New(nc, log), nil
}

// New wraps an established connection. The Transport takes ownership of nc.
func New(nc *nats.Conn, log *logging.Logger) *Transport {
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{nc: nc, log: log, ctx: ctx, cancel: cancel}
}

// Publish implements transport.Transport.
func (t *Transport) Publish(_ context.Context, subject string, data []byte) error {
	if err := t.nc.Publish(subject, data); err != nil {
		return mapError(err)
	}
	return nil
}

// Subscribe implements transport.Transport.
func (t *Transport) Subscribe(subject string, h transport.Handler) (transport.Subscription, error) {
	sub, err := t.nc.Subscribe(subject, t.adapt(h))
	if err != nil {
		return nil, mapError(err)
	}
	return subscription{sub}, nil
}

// QueueSubscribe implements transport.Transport.
func (t *Transport) QueueSubscribe(subject, queue string, h transport.Handler) (transport.Subscription, error) {
	sub, err := t.nc.QueueSubscribe(subject, queue, t.adapt(h))
	if err != nil {
		return nil, mapError(err)
	}
	return subscription{sub}, nil
}

func (t *Transport) adapt(h transport.Handler) nats.MsgHandler {
	return func(m *nats.Msg) {
		h(t.ctx, transport.NewMessage(m.Subject, m.Reply, m.Data, m.Respond))
	}
}

// Request implements transport.Transport.
func (t *Transport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := t.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, mapError(err)
	}
	return msg.Data, nil
}

// Close drains subscriptions and closes the connection.
func (t *Transport) Close() error {
	t.cancel()
	if t.nc.IsClosed() {
		return nil
	}
	if err := t.nc.Drain(); err != nil {
		t.nc.Close()
		return mapError(err)
	}
	return nil
}

// mapError translates nats errors into the transport and shared sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrNoResponders):
		return fmt.Errorf("%w: %v", transport.ErrNoResponders, err)
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", wberrors.ErrTimeout, err)
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionDraining):
		return fmt.Errorf("%w: %v", wberrors.ErrClosed, err)
	default:
		return err
	}
}

type subscription struct {
	sub *nats.Subscription
}

func (s subscription) Subject() string { return s.sub.Subject }

func (s subscription) Unsubscribe() error { return mapError(s.sub.Unsubscribe()) }
