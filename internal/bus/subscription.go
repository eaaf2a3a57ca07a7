package bus

import (
	"context"
	"sync"
	"sync/atomic"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/transport"
)

// DefaultBufferSize is the per-subscription delivery buffer.
const DefaultBufferSize = 256

// subscription owns a bounded buffer drained by a single goroutine, so one
// subscription sees its messages in publish order.
type subscription struct {
	id      uint64
	pattern string
	queue   string
	handler transport.Handler
	bus     *Bus

	buffer    chan *transport.Message
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSubscription(b *Bus, id uint64, pattern, queue string, h transport.Handler, size int) *subscription {
	return &subscription{
		id:      id,
		pattern: pattern,
		queue:   queue,
		handler: h,
		bus:     b,
		buffer:  make(chan *transport.Message, size),
		done:    make(chan struct{}),
	}
}

func (s *subscription) Subject() string { return s.pattern }

// Unsubscribe stops delivery. Buffered messages that have not started are dropped.
func (s *subscription) Unsubscribe() error {
	s.bus.remove(s.id)
	s.stop()
	return nil
}

func (s *subscription) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// send enqueues without blocking. A full buffer drops the message.
func (s *subscription) send(msg *transport.Message) error {
	select {
	case <-s.done:
		return wberrors.ErrClosed
	default:
	}
	select {
	case s.buffer <- msg:
		return nil
	default:
		s.dropped.Add(1)
		return wberrors.ErrBufferFull
	}
}

func (s *subscription) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.buffer:
			s.deliver(ctx, msg)
		}
	}
}

func (s *subscription) deliver(ctx context.Context, msg *transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.log.Error("subscription handler panicked", "subject", msg.Subject, "panic", r)
		}
	}()
	s.handler(ctx, msg)
}
