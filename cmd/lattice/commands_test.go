package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/bus"
	"github.com/gezibash/wasmbus/internal/cache"
	"github.com/gezibash/wasmbus/pkg/runtime"
	"github.com/gezibash/wasmbus/pkg/transport"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

const (
	testActor    = "MB2ZQB6ROOMAYBO4ZCTFYWN7YIVBWA3MTKZYAQKJMTIHE2ELLRW2E3ZW"
	testProvider = "VB2ZQB6ROOMAYBO4ZCTFYWN7YIVBWA3MTKZYAQKJMTIHE2ELLRW2E3ZW"
)

// sharedBus keeps the bus open across the runtimes of several commands.
type sharedBus struct{ *bus.Bus }

func (sharedBus) Close() error { return nil }

func useBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New()
	prev := runtimeFactory
	runtimeFactory = func(*viper.Viper) []runtime.Extension {
		return []runtime.Extension{transport.Attach(sharedBus{b})}
	}
	t.Cleanup(func() {
		runtimeFactory = prev
		_ = b.Close()
	})
	return b
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	return executeIn(t, t.TempDir(), args...)
}

func executeIn(t *testing.T, dataDir string, args ...string) error {
	t.Helper()
	cmd := newRootCmd(viper.New())
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--prefix", "test", "--timeout", "2s", "-o", "json"}, args...))
	return cmd.Execute()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func respond(t *testing.T, b *bus.Bus, subject string, reply func(msg *transport.Message) any) {
	t.Helper()
	_, err := b.Subscribe(subject, func(_ context.Context, msg *transport.Message) {
		data, err := wasmbus.Serialize(reply(msg))
		if err != nil {
			t.Errorf("Serialize: %v", err)
			return
		}
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
}

func TestInvokeCommand(t *testing.T) {
	b := useBus(t)

	var seen wasmbus.Invocation
	respond(t, b, wasmbus.ProviderSubject("test", testProvider, "default"), func(msg *transport.Message) any {
		if err := wasmbus.Deserialize(msg.Data, &seen); err != nil {
			return wasmbus.Failure("", err.Error())
		}
		if seen.Operation == "Fail" {
			return wasmbus.Failure(seen.ID, "no such operation")
		}
		return wasmbus.Success(seen.ID, seen.Msg)
	})

	err := execute(t, "invoke", "--actor", testActor, "--provider", testProvider,
		"--namespace", "wasmcloud:keyvalue", "--op", "Get", "--json", `{"key":"k"}`)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if seen.Operation != "Get" {
		t.Errorf("operation = %q", seen.Operation)
	}
	if !strings.HasSuffix(seen.TargetURL(), testProvider) {
		t.Errorf("target = %q", seen.TargetURL())
	}

	err = execute(t, "invoke", "--actor", testActor, "--provider", testProvider,
		"--namespace", "wasmcloud:keyvalue", "--op", "Fail")
	if !errors.Is(err, errReported) {
		t.Errorf("failed invocation err = %v, want errReported", err)
	}
}

func TestInvokeRequiresOperation(t *testing.T) {
	useBus(t)
	if err := execute(t, "invoke", "--namespace", "wasmcloud:keyvalue"); err == nil {
		t.Error("invoke without --op succeeded")
	}
}

func TestLinkCommands(t *testing.T) {
	b := useBus(t)

	puts := make(chan wasmbus.LinkDefinition, 1)
	_, err := b.Subscribe(wasmbus.LinkDefsPutSubject("test", testProvider, "default"), func(_ context.Context, msg *transport.Message) {
		var ld wasmbus.LinkDefinition
		if err := wasmbus.Deserialize(msg.Data, &ld); err == nil {
			puts <- ld
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	respond(t, b, wasmbus.LinkDefsGetSubject("test", testProvider, "default"), func(*transport.Message) any {
		return wasmbus.LinkDefinitionList{LinkDefinitions: []wasmbus.LinkDefinition{{
			ActorID: testActor, ProviderID: testProvider, LinkName: "default", Values: map[string]string{"URL": "mem://"},
		}}}
	})

	err = execute(t, "link", "put", "--actor", testActor, "--provider", testProvider,
		"--contract", "wasmcloud:keyvalue", "--value", "URL=mem://")
	if err != nil {
		t.Fatalf("link put: %v", err)
	}
	select {
	case ld := <-puts:
		if ld.ActorID != testActor || ld.Values["URL"] != "mem://" {
			t.Errorf("published = %+v", ld)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("link definition not published")
	}

	if err := execute(t, "link", "get", "--provider", testProvider); err != nil {
		t.Errorf("link get: %v", err)
	}
	if err := execute(t, "link", "get", "--provider", testProvider, "--filter", `values.URL == "mem://"`); err != nil {
		t.Errorf("link get --filter: %v", err)
	}
	if err := execute(t, "link", "get", "--provider", testProvider, "--filter", "values ==="); err == nil {
		t.Error("link get with a broken filter succeeded")
	}
	if err := execute(t, "link", "del", "--actor", testActor, "--provider", testProvider); err != nil {
		t.Errorf("link del: %v", err)
	}
}

func TestClaimsAndRefMapCommands(t *testing.T) {
	b := useBus(t)
	c := cache.New(b, cache.Config{Prefix: "test"})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	err := execute(t, "claims", "put", "--json", `{"sub":"`+testActor+`","name":"echo","caps":["wasmcloud:keyvalue"],"rev":2}`)
	if err != nil {
		t.Fatalf("claims put: %v", err)
	}
	waitFor(t, func() bool { return len(c.Claims()) == 1 })
	if got := c.Claims()[0]; got.Name != "echo" || got.Revision != 2 {
		t.Errorf("cached claims = %+v", got)
	}
	if err := execute(t, "claims", "get", "--filter", "rev >= 2"); err != nil {
		t.Errorf("claims get: %v", err)
	}
	if err := execute(t, "claims", "put", "--json", `{"sub":"not-an-actor"}`); err == nil {
		t.Error("claims put with bad subject succeeded")
	}

	err = execute(t, "refmap", "put", "--alias", "kv", "--provider", testProvider, "--contract", "wasmcloud:keyvalue")
	if err != nil {
		t.Fatalf("refmap put: %v", err)
	}
	waitFor(t, func() bool { return len(c.ReferenceMaps()) == 1 })
	if got := c.ReferenceMaps()[0]; got.Kind != wasmbus.CallAlias("kv") {
		t.Errorf("cached reference = %+v", got)
	}
	if err := execute(t, "refmap", "get"); err != nil {
		t.Errorf("refmap get: %v", err)
	}
}

func TestRefMapFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   refMapFlags
		wantErr bool
	}{
		{"oci actor", refMapFlags{oci: "reg/echo:1", actor: testActor}, false},
		{"alias provider", refMapFlags{alias: "kv", provider: testProvider}, false},
		{"no reference", refMapFlags{actor: testActor}, true},
		{"both references", refMapFlags{oci: "reg/echo:1", alias: "kv", actor: testActor}, true},
		{"no target", refMapFlags{alias: "kv"}, true},
		{"both targets", refMapFlags{alias: "kv", actor: testActor, provider: testProvider}, true},
		{"bad actor key", refMapFlags{alias: "kv", actor: "echo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rerr := tt.flags.reference()
			_, terr := tt.flags.target()
			if got := rerr != nil || terr != nil; got != tt.wantErr {
				t.Errorf("reference err = %v, target err = %v, wantErr %v", rerr, terr, tt.wantErr)
			}
		})
	}
}

func TestHealthAndShutdownCommands(t *testing.T) {
	b := useBus(t)

	var healthy atomic.Bool
	healthy.Store(true)
	respond(t, b, wasmbus.HealthSubject("test", testProvider, "default"), func(*transport.Message) any {
		if healthy.Load() {
			return wasmbus.HealthResponse{Healthy: true}
		}
		return wasmbus.HealthResponse{Healthy: false, Message: "draining"}
	})
	if err := execute(t, "health", "--provider", testProvider); err != nil {
		t.Errorf("health: %v", err)
	}
	healthy.Store(false)
	if err := execute(t, "health", "--provider", testProvider); !errors.Is(err, errReported) {
		t.Errorf("unhealthy err = %v, want errReported", err)
	}

	shutdowns := make(chan struct{}, 1)
	if _, err := b.Subscribe(wasmbus.ShutdownSubject("test", testProvider, "default"), func(context.Context, *transport.Message) {
		shutdowns <- struct{}{}
	}); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, "shutdown", "--provider", testProvider); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case <-shutdowns:
	case <-time.After(2 * time.Second):
		t.Error("shutdown not published")
	}
}

func TestFormatValues(t *testing.T) {
	if got := formatValues(map[string]string{"b": "2", "a": "1"}); got != "a=1,b=2" {
		t.Errorf("formatValues = %q", got)
	}
	if got := formatValues(nil); got != "" {
		t.Errorf("formatValues(nil) = %q", got)
	}
}

func TestNamesCommands(t *testing.T) {
	b := useBus(t)
	dir := t.TempDir()

	respond(t, b, wasmbus.HealthSubject("test", testProvider, "default"), func(*transport.Message) any {
		return wasmbus.HealthResponse{Healthy: true}
	})

	if err := executeIn(t, dir, "names", "add", "kv", testProvider); err != nil {
		t.Fatalf("names add: %v", err)
	}
	if err := executeIn(t, dir, "names", "add", "echo", testActor); err != nil {
		t.Fatalf("names add: %v", err)
	}
	if err := executeIn(t, dir, "names", "add", "bad", "not-a-key"); err == nil {
		t.Error("names add with a bad key succeeded")
	}
	if err := executeIn(t, dir, "names", "ls"); err != nil {
		t.Errorf("names ls: %v", err)
	}

	if err := executeIn(t, dir, "health", "--provider", "@kv"); err != nil {
		t.Errorf("health @kv: %v", err)
	}
	if err := executeIn(t, dir, "health", "--provider", "@nobody"); err == nil {
		t.Error("health with an unknown name succeeded")
	}

	if err := executeIn(t, dir, "names", "rm", "kv"); err != nil {
		t.Fatalf("names rm: %v", err)
	}
	if err := executeIn(t, dir, "health", "--provider", "@kv"); err == nil {
		t.Error("health with a removed name succeeded")
	}
}

func TestKeysCommands(t *testing.T) {
	dir := t.TempDir()

	if err := executeIn(t, dir, "keys", "generate", "--alias", "host", "--default"); err != nil {
		t.Fatalf("keys generate: %v", err)
	}
	if err := executeIn(t, dir, "keys", "generate", "--default"); err == nil {
		t.Error("--default without --alias succeeded")
	}
	if err := executeIn(t, dir, "keys", "ls"); err != nil {
		t.Errorf("keys ls: %v", err)
	}

	seedFile := filepath.Join(dir, "imported.nk")
	if err := executeIn(t, dir, "keys", "generate", "--out", seedFile); err != nil {
		t.Fatalf("keys generate --out: %v", err)
	}
	if err := executeIn(t, dir, "keys", "import", seedFile, "--alias", "ci"); err != nil {
		t.Fatalf("keys import: %v", err)
	}
	if err := executeIn(t, dir, "keys", "default", "ci"); err != nil {
		t.Errorf("keys default: %v", err)
	}
	if err := executeIn(t, dir, "keys", "rm", "host"); err != nil {
		t.Errorf("keys rm: %v", err)
	}
	if err := executeIn(t, dir, "keys", "default", "host"); err == nil {
		t.Error("default to a deleted alias succeeded")
	}
}

func TestInvokeSignsWithKeyringKey(t *testing.T) {
	b := useBus(t)
	dir := t.TempDir()

	if err := executeIn(t, dir, "keys", "generate", "--alias", "signer"); err != nil {
		t.Fatal(err)
	}

	hosts := make(chan string, 1)
	respond(t, b, wasmbus.ProviderSubject("test", testProvider, "default"), func(msg *transport.Message) any {
		var inv wasmbus.Invocation
		if err := wasmbus.Deserialize(msg.Data, &inv); err != nil {
			return wasmbus.Failure("", err.Error())
		}
		hosts <- inv.HostID
		return wasmbus.Success(inv.ID, nil)
	})

	err := executeIn(t, dir, "--key", "signer", "invoke", "--actor", testActor, "--provider", testProvider,
		"--namespace", "wasmcloud:keyvalue", "--op", "Get")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	host := <-hosts
	if !strings.HasPrefix(host, "N") {
		t.Errorf("host id = %q", host)
	}
	if err := executeIn(t, dir, "--key", "missing", "invoke", "--actor", testActor, "--provider", testProvider,
		"--namespace", "wasmcloud:keyvalue", "--op", "Get"); err == nil {
		t.Error("invoke with an unknown key succeeded")
	}
}
