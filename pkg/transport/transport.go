// Package transport defines the message-bus boundary the lattice protocol runs on.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNoResponders indicates a request was published to a subject with no subscribers.
	ErrNoResponders = errors.New("no responders")
	// ErrNoReply indicates Respond was called on a message that carried no reply subject.
	ErrNoReply = errors.New("message has no reply subject")
)

// Message is a received message.
type Message struct {
	Subject string
	Reply   string
	Data    []byte

	respond func([]byte) error
}

// NewMessage builds a message whose Respond delivers through fn.
// Implementations call this when handing deliveries to a Handler.
func NewMessage(subject, reply string, data []byte, fn func([]byte) error) *Message {
	return &Message{Subject: subject, Reply: reply, Data: data, respond: fn}
}

// Respond answers a request.
func (m *Message) Respond(data []byte) error {
	if m.Reply == "" || m.respond == nil {
		return ErrNoReply
	}
	return m.respond(data)
}

// Handler processes a delivered message. Handlers for one subscription are
// invoked sequentially; long work should move to its own goroutine.
type Handler func(ctx context.Context, msg *Message)

// Subscription is an active interest in a subject.
type Subscription interface {
	Subject() string
	Unsubscribe() error
}

// Transport is the set of bus operations the lattice needs.
type Transport interface {
	// Publish sends data without waiting for any reply.
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe delivers every message on subject to h.
	Subscribe(subject string, h Handler) (Subscription, error)
	// QueueSubscribe delivers each message on subject to one member of queue.
	QueueSubscribe(subject, queue string, h Handler) (Subscription, error)
	// Request publishes data and waits for the first reply or ctx expiry.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	// Close releases the underlying connection.
	Close() error
}
