package runtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
	"github.com/gezibash/wasmbus/pkg/logging"
)

func newTestBuilder() *Builder {
	return New("test").Logger(logging.Discard()).HandleSignals(false)
}

func TestBuildGeneratesHostKey(t *testing.T) {
	rt, err := newTestBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	if !strings.HasPrefix(rt.HostKey(), "N") {
		t.Fatalf("HostKey() = %q, want server nkey", rt.HostKey())
	}
	if rt.Name() != "test" {
		t.Fatalf("Name() = %q", rt.Name())
	}
}

func TestBuildWithSigner(t *testing.T) {
	kp, err := nkey.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rt, err := newTestBuilder().Signer(kp).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	if rt.HostKey() != kp.Encoded() {
		t.Fatalf("HostKey() = %s, want %s", rt.HostKey(), kp.Encoded())
	}
}

func TestBuildProviderError(t *testing.T) {
	want := errors.New("vault sealed")
	_, err := newTestBuilder().IdentityProvider(identity.ProviderFunc(func(context.Context) (identity.Signer, error) {
		return nil, want
	})).Build()
	if !errors.Is(err, want) {
		t.Fatalf("Build() error = %v, want %v", err, want)
	}
}

func TestBuildRequiresName(t *testing.T) {
	if _, err := New("").Logger(logging.Discard()).Build(); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestExtensionsAndCloseOrder(t *testing.T) {
	var order []string
	ext := func(name string) Extension {
		return func(rt *Runtime) error {
			rt.Set(name, name)
			rt.OnClose(func() error {
				order = append(order, name)
				return nil
			})
			return nil
		}
	}

	rt, err := newTestBuilder().Use(ext("first")).Use(ext("second")).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := rt.Get("second"); got != "second" {
		t.Fatalf("Get(second) = %v", got)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Fatalf("close order = %v, want LIFO", order)
	}
	if rt.Context().Err() == nil {
		t.Fatal("context should be cancelled after Close")
	}
}

func TestExtensionFailureClosesRuntime(t *testing.T) {
	var closed bool
	_, err := newTestBuilder().
		Use(func(rt *Runtime) error {
			rt.OnClose(func() error { closed = true; return nil })
			return nil
		}).
		Use(func(*Runtime) error { return io.ErrUnexpectedEOF }).
		Build()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Build() error = %v", err)
	}
	if !closed {
		t.Fatal("earlier extensions should be closed on failure")
	}
}

func TestCloseJoinsErrors(t *testing.T) {
	rt, err := newTestBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	boom := errors.New("boom")
	rt.OnClose(func() error { return boom })
	if err := rt.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close() error = %v, want wrapped boom", err)
	}
}
