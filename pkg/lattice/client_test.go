package lattice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gezibash/wasmbus/internal/bus"
	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
	"github.com/gezibash/wasmbus/pkg/transport"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

const (
	actorA   = "MB2ZQB6ROOMAYBO4ZCTFYWN7YIVBWA3MTKZYAQKJMTIHE2ELLRW2E3ZW"
	actorB   = "MCUCZ7KMLQBRRWAZ6GSNG5R6ROWMXHNYKRLHNZDW3L2ZBPR7WHUBBS7Q"
	provider = "VKVPROVIDER"
)

func newTestClient(t *testing.T, cfg Config) (*Client, *bus.Bus, *nkey.Keypair) {
	t.Helper()
	host, err := nkey.Generate()
	if err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	t.Cleanup(func() { b.Close() })
	if cfg.Signer == nil {
		cfg.Signer = host
	}
	c, err := New(b, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, b, host
}

// respond installs a responder that decodes each invocation and answers
// with whatever fn returns.
func respond(t *testing.T, b *bus.Bus, subject string, fn func(inv *wasmbus.Invocation) []byte) {
	t.Helper()
	_, err := b.Subscribe(subject, func(_ context.Context, msg *transport.Message) {
		var inv wasmbus.Invocation
		if err := wasmbus.Deserialize(msg.Data, &inv); err != nil {
			t.Errorf("decode invocation: %v", err)
			return
		}
		if reply := fn(&inv); reply != nil {
			_ = msg.Respond(reply)
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := wasmbus.Serialize(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name        string
		req         InvocationRequest
		wantOrigin  wasmbus.Entity
		wantTarget  wasmbus.Entity
		wantSubject string
	}{
		{
			name:        "actor to provider",
			req:         InvocationRequest{ActorKey: actorA, Namespace: "wasmcloud:keyvalue", ProviderKey: provider},
			wantOrigin:  wasmbus.Actor{PublicKey: actorA},
			wantTarget:  wasmbus.Capability{ID: provider, ContractID: "wasmcloud:keyvalue", LinkName: "default"},
			wantSubject: "wasmbus.rpc.lat.VKVPROVIDER.default",
		},
		{
			name:        "named binding",
			req:         InvocationRequest{ActorKey: actorA, Namespace: "wasmcloud:keyvalue", ProviderKey: provider, Binding: "cache"},
			wantOrigin:  wasmbus.Actor{PublicKey: actorA},
			wantTarget:  wasmbus.Capability{ID: provider, ContractID: "wasmcloud:keyvalue", LinkName: "cache"},
			wantSubject: "wasmbus.rpc.lat.VKVPROVIDER.cache",
		},
		{
			name:        "actor to actor",
			req:         InvocationRequest{ActorKey: actorA, Namespace: actorB},
			wantOrigin:  wasmbus.Actor{PublicKey: actorA},
			wantTarget:  wasmbus.Actor{PublicKey: actorB},
			wantSubject: "wasmbus.rpc.lat." + actorB,
		},
		{
			name:        "provider to actor",
			req:         InvocationRequest{ActorKey: "", Namespace: actorB, ProviderKey: provider, OriginContract: "wasmcloud:httpserver"},
			wantOrigin:  wasmbus.Capability{ID: provider, ContractID: "wasmcloud:httpserver", LinkName: "default"},
			wantTarget:  wasmbus.Actor{PublicKey: actorB},
			wantSubject: "wasmbus.rpc.lat." + actorB,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, target, subject := route(tt.req, "lat")
			if origin != tt.wantOrigin {
				t.Errorf("origin = %v, want %v", origin, tt.wantOrigin)
			}
			if target != tt.wantTarget {
				t.Errorf("target = %v, want %v", target, tt.wantTarget)
			}
			if subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", subject, tt.wantSubject)
			}
		})
	}
}

func TestPerformInvocation(t *testing.T) {
	c, b, host := newTestClient(t, Config{})
	respond(t, b, wasmbus.ProviderSubject("", provider, ""), func(inv *wasmbus.Invocation) []byte {
		if err := inv.Validate([]string{host.Encoded()}); err != nil {
			return encode(t, wasmbus.Failure(inv.ID, err.Error()))
		}
		return encode(t, wasmbus.Success(inv.ID, append([]byte("re:"), inv.Msg...)))
	})

	resp, err := c.PerformInvocation(context.Background(), InvocationRequest{
		ActorKey:    actorA,
		Namespace:   "wasmcloud:keyvalue",
		ProviderKey: provider,
		Operation:   "Get",
		Payload:     []byte("x"),
	})
	if err != nil {
		t.Fatalf("PerformInvocation: %v", err)
	}
	if resp.Error != "" || string(resp.Msg) != "re:x" {
		t.Errorf("response = %+v", resp)
	}
}

func TestPerformInvocationOverrides(t *testing.T) {
	c, b, _ := newTestClient(t, Config{})
	other, err := nkey.Generate()
	if err != nil {
		t.Fatal(err)
	}
	seed, err := other.Seed()
	if err != nil {
		t.Fatal(err)
	}

	respond(t, b, wasmbus.ProviderSubject("blue", provider, ""), func(inv *wasmbus.Invocation) []byte {
		return encode(t, wasmbus.Success(inv.ID, []byte(inv.HostID)))
	})

	resp, err := c.PerformInvocation(context.Background(), InvocationRequest{
		ActorKey: actorA, Namespace: "wasmcloud:keyvalue", ProviderKey: provider, Operation: "Get",
		HostSeed: seed, Prefix: "blue",
	})
	if err != nil {
		t.Fatalf("PerformInvocation: %v", err)
	}
	if string(resp.Msg) != other.Encoded() {
		t.Errorf("signed by %q, want %q", resp.Msg, other.Encoded())
	}
}

func TestPerformInvocationFailures(t *testing.T) {
	c, b, _ := newTestClient(t, Config{Timeout: 50 * time.Millisecond})

	respond(t, b, wasmbus.ProviderSubject("", "VSILENT", ""), func(*wasmbus.Invocation) []byte { return nil })
	respond(t, b, wasmbus.ProviderSubject("", "VWRONGID", ""), func(*wasmbus.Invocation) []byte {
		return encode(t, wasmbus.Success("someone-else", nil))
	})
	respond(t, b, wasmbus.ProviderSubject("", "VGARBAGE", ""), func(*wasmbus.Invocation) []byte {
		return []byte{0xc1}
	})

	for _, key := range []string{"VNOBODY", "VSILENT", "VWRONGID", "VGARBAGE"} {
		t.Run(key, func(t *testing.T) {
			resp, err := c.PerformInvocation(context.Background(), InvocationRequest{
				ActorKey: actorA, Namespace: "wasmcloud:keyvalue", ProviderKey: key, Operation: "Get",
			})
			if err != nil {
				t.Fatalf("err = %v, want failure response", err)
			}
			if !strings.HasPrefix(resp.Error, "RPC failure") {
				t.Errorf("Error = %q", resp.Error)
			}
			if resp.InvocationID == "" || resp.InvocationID == "someone-else" {
				t.Errorf("InvocationID = %q", resp.InvocationID)
			}
		})
	}
}

func TestPerformInvocationSigningErrors(t *testing.T) {
	b := bus.New()
	defer b.Close()
	c, err := New(b, Config{})
	if err != nil {
		t.Fatal(err)
	}
	req := InvocationRequest{ActorKey: actorA, Namespace: "wasmcloud:keyvalue", ProviderKey: provider, Operation: "Get"}

	if _, err := c.PerformInvocation(context.Background(), req); !errors.Is(err, wberrors.ErrInvalidInput) {
		t.Errorf("no signer err = %v", err)
	}
	req.HostSeed = "SNOTASEED"
	if _, err := c.PerformInvocation(context.Background(), req); err == nil {
		t.Error("bad seed accepted")
	}
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, wberrors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}
