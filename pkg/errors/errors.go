// Package errors holds the sentinels shared by the lattice transports, the
// provider runtime and the key-value stores. Callers wrap them with detail
// and match with errors.Is.
package errors

import stderrors "errors"

var (
	// ErrClosed is returned by a bus, transport, link registry or store used
	// after Close, and by a NATS connection that is draining.
	ErrClosed = stderrors.New("closed")

	// ErrInvalidInput marks a malformed invocation, link definition, entity
	// or stored record.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrTimeout is returned when an RPC reply or a dispatched operation
	// misses its deadline.
	ErrTimeout = stderrors.New("timeout")

	// ErrBufferFull is returned when a bus subscriber's queue cannot take
	// another message.
	ErrBufferFull = stderrors.New("buffer full")
)
