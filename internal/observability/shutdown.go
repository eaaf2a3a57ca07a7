package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gezibash/wasmbus/pkg/logging"
)

// ShutdownCoordinator flushes process-level exporters, newest first. The
// provider's own draining is handled by its server; this only covers the
// metrics endpoint and the trace exporter.
type ShutdownCoordinator struct {
	log *logging.Logger

	mu       sync.Mutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   func(context.Context) error
}

// NewShutdownCoordinator returns an empty coordinator. log may be nil.
func NewShutdownCoordinator(log *logging.Logger) *ShutdownCoordinator {
	if log == nil {
		log = logging.Discard()
	}
	return &ShutdownCoordinator{log: log.WithComponent("shutdown")}
}

// Register adds a handler.
func (s *ShutdownCoordinator) Register(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, namedHandler{name: name, fn: fn})
}

// Shutdown runs and forgets every handler. A handler still running when ctx
// expires is reported but does not stop the rest.
func (s *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if err := h.fn(ctx); err != nil {
			s.log.Error("shutdown failed", "component", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		s.log.Debug("shut down", "component", h.name)
	}
	return errors.Join(errs...)
}
