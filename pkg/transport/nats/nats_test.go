package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/transport"
)

func TestMapError(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no responders", nats.ErrNoResponders, transport.ErrNoResponders},
		{"wrapped no responders", fmt.Errorf("request: %w", nats.ErrNoResponders), transport.ErrNoResponders},
		{"nats timeout", nats.ErrTimeout, wberrors.ErrTimeout},
		{"context deadline", context.DeadlineExceeded, wberrors.ErrTimeout},
		{"closed", nats.ErrConnectionClosed, wberrors.ErrClosed},
		{"draining", nats.ErrConnectionDraining, wberrors.ErrClosed},
		{"passthrough", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.in); !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) != nil")
	}
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1", Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
