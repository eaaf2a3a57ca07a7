// Package bus is an in-process implementation of transport.Transport.
//
// It follows the subject semantics of a NATS server closely enough to run a
// whole lattice inside one process: dotted subjects with "*" and ">"
// wildcards, queue groups that hand each message to one member, and
// request/reply over private inboxes.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/transport"
)

// DefaultRequestTimeout bounds a request whose context carries no deadline.
const DefaultRequestTimeout = 5 * time.Second

const inboxPrefix = "_INBOX."

// Bus routes messages between subscriptions in the same process.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	cursors map[string]uint64 // queue group -> round-robin cursor
	pending map[string]*future
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc

	bufferSize     int
	requestTimeout time.Duration
	log            *logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscription buffer size.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithRequestTimeout sets the timeout applied to requests without a deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:           make(map[uint64]*subscription),
		cursors:        make(map[string]uint64),
		pending:        make(map[string]*future),
		ctx:            ctx,
		cancel:         cancel,
		bufferSize:     DefaultBufferSize,
		requestTimeout: DefaultRequestTimeout,
		log:            logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithComponent("bus")
	return b
}

var _ transport.Transport = (*Bus)(nil)

// Subscribe implements transport.Transport.
func (b *Bus) Subscribe(subject string, h transport.Handler) (transport.Subscription, error) {
	return b.subscribe(subject, "", h)
}

// QueueSubscribe implements transport.Transport.
func (b *Bus) QueueSubscribe(subject, queue string, h transport.Handler) (transport.Subscription, error) {
	if queue == "" {
		return nil, fmt.Errorf("%w: empty queue group", wberrors.ErrInvalidInput)
	}
	return b.subscribe(subject, queue, h)
}

func (b *Bus) subscribe(pattern, queue string, h transport.Handler) (transport.Subscription, error) {
	if err := validPattern(pattern); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler", wberrors.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, wberrors.ErrClosed
	}
	b.nextID++
	s := newSubscription(b, b.nextID, pattern, queue, h, b.bufferSize)
	b.subs[s.id] = s
	go s.run(b.ctx)
	return s, nil
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish implements transport.Transport. Publishing to a subject nobody
// listens on is not an error.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.route(subject, "", data)
	return err
}

// Request implements transport.Transport.
func (b *Bus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()
	}

	inbox := inboxPrefix + uuid.NewString()
	f := newFuture()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, wberrors.ErrClosed
	}
	b.pending[inbox] = f
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, inbox)
		b.mu.Unlock()
	}()

	n, err := b.route(subject, inbox, data)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", transport.ErrNoResponders, subject)
	}
	return f.await(ctx)
}

// reply completes the pending request for inbox, if it is still waiting.
func (b *Bus) reply(inbox string, data []byte) error {
	b.mu.RLock()
	f, ok := b.pending[inbox]
	b.mu.RUnlock()
	if !ok {
		// The requester gave up or another responder already answered.
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.fulfill(buf)
	return nil
}

// route delivers data to every plain subscription that matches subject and
// to one member of each matching queue group. It returns how many
// subscriptions accepted the message.
func (b *Bus) route(subject, reply string, data []byte) (int, error) {
	if err := validSubject(subject); err != nil {
		return 0, err
	}

	targets, err := b.targets(subject)
	if err != nil {
		return 0, err
	}

	var respond func([]byte) error
	if reply != "" {
		respond = func(resp []byte) error { return b.reply(reply, resp) }
	}

	delivered := 0
	for _, s := range targets {
		payload := make([]byte, len(data))
		copy(payload, data)
		msg := transport.NewMessage(subject, reply, payload, respond)
		if err := s.send(msg); err != nil {
			if !errors.Is(err, wberrors.ErrClosed) {
				b.log.Warn("dropping message for slow subscriber", "subject", subject, "subscription", s.pattern, "error", err)
			}
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (b *Bus) targets(subject string) ([]*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, wberrors.ErrClosed
	}

	var out []*subscription
	groups := make(map[string][]*subscription)
	for _, s := range b.subs {
		if !matchSubject(s.pattern, subject) {
			continue
		}
		if s.queue == "" {
			out = append(out, s)
			continue
		}
		groups[s.queue] = append(groups[s.queue], s)
	}

	for queue, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })
		cursor := b.cursors[queue]
		out = append(out, members[cursor%uint64(len(members))])
		b.cursors[queue] = cursor + 1
	}
	return out, nil
}

// Close stops every subscription and fails outstanding requests.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*subscription)
	for _, f := range b.pending {
		f.fail(wberrors.ErrClosed)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	b.cancel()
	return nil
}
