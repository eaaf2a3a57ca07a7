// Package runtime provides the process foundation for lattice services.
// Use the builder to compose a signer, logging and extensions such as a transport.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
	"github.com/gezibash/wasmbus/pkg/logging"
)

// Extension is a function that extends the runtime with a capability.
// Extensions are called in order during Build().
type Extension func(*Runtime) error

// Builder constructs a Runtime.
type Builder struct {
	name      string
	logLevel  string
	logFormat string
	logWriter io.Writer
	signals   bool

	signer   identity.Signer
	provider identity.Provider
	logger   *logging.Logger

	extensions []Extension
}

// New starts building a runtime for the named service.
func New(name string) *Builder {
	return &Builder{
		name:      name,
		logLevel:  "info",
		logFormat: "text",
		signals:   true,
	}
}

// Use adds an extension to the runtime.
func (b *Builder) Use(ext Extension) *Builder {
	b.extensions = append(b.extensions, ext)
	return b
}

// Logging configures log level and format.
// Levels: debug, info, warn, error. Formats: text, json.
func (b *Builder) Logging(level, format string) *Builder {
	if level != "" {
		b.logLevel = level
	}
	if format != "" {
		b.logFormat = format
	}
	return b
}

// LogWriter sets the output destination for logs. Defaults to os.Stdout.
func (b *Builder) LogWriter(w io.Writer) *Builder {
	b.logWriter = w
	return b
}

// Logger sets a preconfigured logger, bypassing Logging and LogWriter.
func (b *Builder) Logger(l *logging.Logger) *Builder {
	b.logger = l
	return b
}

// IdentityProvider configures where the host key comes from.
func (b *Builder) IdentityProvider(p identity.Provider) *Builder {
	b.provider = p
	return b
}

// Signer sets the host key directly.
func (b *Builder) Signer(s identity.Signer) *Builder {
	b.signer = s
	return b
}

// HandleSignals controls whether SIGINT/SIGTERM cancel the runtime context.
// Enabled by default.
func (b *Builder) HandleSignals(on bool) *Builder {
	b.signals = on
	return b
}

// Build constructs the runtime and applies all extensions.
func (b *Builder) Build() (*Runtime, error) {
	if b.name == "" {
		return nil, fmt.Errorf("name is required")
	}

	log := b.logger
	if log == nil {
		w := b.logWriter
		if w == nil {
			w = os.Stdout
		}
		log = logging.SetupWriter(b.logLevel, b.logFormat, w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if b.signals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			select {
			case <-sigCh:
			case <-ctx.Done():
				signal.Stop(sigCh)
				return
			}
			log.Info("shutting down...")
			cancel()
			<-sigCh
			log.Warn("forced shutdown")
			os.Exit(1)
		}()
	}

	signer := b.signer
	if signer == nil {
		provider := b.provider
		if provider == nil {
			provider = nkey.Provider{}
		}
		var err error
		signer, err = provider.Load(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load host key: %w", err)
		}
	}

	hostKey, err := nkey.Encode(signer)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	log.Info("loaded host key", "host", logging.FormatKey(hostKey))

	rt := &Runtime{
		name:       b.name,
		signer:     signer,
		hostKey:    hostKey,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		components: make(map[string]any),
	}

	for _, ext := range b.extensions {
		if err := ext(rt); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

// Runtime owns the lifecycle of a lattice process.
type Runtime struct {
	name    string
	signer  identity.Signer
	hostKey string
	log     *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	components map[string]any
	closers    []func() error
}

// Name returns the service name.
func (r *Runtime) Name() string { return r.name }

// Signer returns the host key signer.
func (r *Runtime) Signer() identity.Signer { return r.signer }

// HostKey returns the host public key in nkey form.
func (r *Runtime) HostKey() string { return r.hostKey }

// Log returns the logger.
func (r *Runtime) Log() *logging.Logger { return r.log }

// Context returns the lifecycle context (cancelled on shutdown).
func (r *Runtime) Context() context.Context { return r.ctx }

// Shutdown triggers graceful shutdown.
func (r *Runtime) Shutdown() { r.cancel() }

// Wait blocks until shutdown.
func (r *Runtime) Wait() { <-r.ctx.Done() }

// Set stores a component for later retrieval by extensions.
func (r *Runtime) Set(key string, component any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[key] = component
}

// Get retrieves a component by key.
func (r *Runtime) Get(key string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.components[key]
}

// OnClose registers a cleanup function. Cleanups run in reverse order.
func (r *Runtime) OnClose(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, fn)
}

// Close cancels the context and runs all cleanups.
func (r *Runtime) Close() error {
	r.cancel()

	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
