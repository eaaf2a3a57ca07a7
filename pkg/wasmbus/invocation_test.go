package wasmbus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
)

func newHostKey(t *testing.T) *nkey.Keypair {
	t.Helper()
	kp, err := nkey.Generate()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	return kp
}

func kvTarget() Capability {
	return Capability{ID: "VKVPROVIDER", ContractID: "wasmcloud:keyvalue", LinkName: "default"}
}

func TestNewInvocation(t *testing.T) {
	host := newHostKey(t)
	origin := Actor{PublicKey: testActorKey}

	inv, err := NewInvocation(host, origin, kvTarget(), "Get", []byte("payload"))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	if inv.ID == "" {
		t.Error("ID is empty")
	}
	if inv.HostID != host.Encoded() {
		t.Errorf("HostID = %q, want %q", inv.HostID, host.Encoded())
	}
	if inv.EncodedClaims == "" {
		t.Error("EncodedClaims is empty")
	}
	if got, want := inv.TargetURL(), "wasmbus://wasmcloud/keyvalue/default/VKVPROVIDER/Get"; got != want {
		t.Errorf("TargetURL() = %q, want %q", got, want)
	}
	if got, want := inv.OriginURL(), "wasmbus://"+testActorKey; got != want {
		t.Errorf("OriginURL() = %q, want %q", got, want)
	}

	claims, err := DecodeClaims(inv.EncodedClaims)
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	if claims.Subject != inv.ID || claims.Issuer != inv.HostID {
		t.Errorf("claims sub/iss = %q/%q", claims.Subject, claims.Issuer)
	}
	if claims.Metadata == nil || claims.Metadata.InvocationHash != inv.Hash() {
		t.Errorf("claims metadata = %+v", claims.Metadata)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Fatal("expected iat and exp")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTokenTTL {
		t.Errorf("token ttl = %v, want %v", ttl, DefaultTokenTTL)
	}

	other, err := NewInvocation(host, origin, kvTarget(), "Get", []byte("payload"))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	if other.ID == inv.ID {
		t.Error("invocation ids must be unique")
	}
}

func TestNewInvocationInvalidInput(t *testing.T) {
	host := newHostKey(t)
	tests := []struct {
		name string
		call func() error
	}{
		{"nil signer", func() error {
			_, err := NewInvocation(nil, Actor{PublicKey: "M"}, kvTarget(), "Get", nil)
			return err
		}},
		{"nil origin", func() error {
			_, err := NewInvocation(host, nil, kvTarget(), "Get", nil)
			return err
		}},
		{"nil target", func() error {
			_, err := NewInvocation(host, Actor{PublicKey: "M"}, nil, "Get", nil)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, wberrors.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestInvocationHash(t *testing.T) {
	got := invocationHash("ab", "cd", "op", []byte("msg"))
	if got != strings.ToUpper(got) || len(got) != 64 {
		t.Fatalf("hash %q is not upper-case hex sha256", got)
	}
	if got == invocationHash("ab", "cd", "other", []byte("msg")) {
		t.Error("operation must contribute to the hash")
	}
	if got == invocationHash("ab", "cd", "op", []byte("msh")) {
		t.Error("msg must contribute to the hash")
	}
}

func TestHalt(t *testing.T) {
	host := newHostKey(t)
	inv, err := Halt(host)
	if err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if !inv.IsHalt() {
		t.Error("IsHalt() = false for halt invocation")
	}
	if inv.Operation != OpHalt || len(inv.Msg) != 0 {
		t.Errorf("halt shape = %q/%v", inv.Operation, inv.Msg)
	}
	if err := inv.Validate([]string{host.Encoded()}); err != nil {
		t.Errorf("Validate: %v", err)
	}

	regular, err := NewInvocation(host, Actor{PublicKey: SystemActor}, kvTarget(), OpHalt, nil)
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	if regular.IsHalt() {
		t.Error("IsHalt() = true for non-system target")
	}
}

func TestInvocationWireRoundTrip(t *testing.T) {
	host := newHostKey(t)
	inv, err := NewInvocation(host, Actor{PublicKey: testActorKey}, kvTarget(), "Set", []byte{0x81, 0xa3})
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}

	data, err := Serialize(inv)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	var raw map[string]any
	if err := Deserialize(data, &raw); err != nil {
		t.Fatalf("Deserialize map: %v", err)
	}
	for _, key := range []string{"origin", "target", "operation", "msg", "id", "encoded_claims", "host_id"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire form missing key %q", key)
		}
	}

	var got Invocation
	if err := Deserialize(data, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Origin != inv.Origin || got.Target != inv.Target {
		t.Errorf("entities = %v -> %v, want %v -> %v", got.Origin, got.Target, inv.Origin, inv.Target)
	}
	if got.Operation != inv.Operation || got.ID != inv.ID || got.HostID != inv.HostID || got.EncodedClaims != inv.EncodedClaims {
		t.Errorf("decoded = %+v, want %+v", got, inv)
	}
	if !bytes.Equal(got.Msg, inv.Msg) {
		t.Errorf("Msg = %x, want %x", got.Msg, inv.Msg)
	}
	if err := got.Validate([]string{host.Encoded()}); err != nil {
		t.Errorf("decoded invocation does not validate: %v", err)
	}
}

func TestInvocationResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		resp := Success("inv-1", nil)
		if resp.InvocationID != "inv-1" || resp.Msg == nil || resp.Error != "" {
			t.Errorf("Success = %+v", resp)
		}
		if resp.Err() != nil {
			t.Errorf("Err() = %v", resp.Err())
		}
	})

	t.Run("failure", func(t *testing.T) {
		resp := Failure("inv-2", "No such operation")
		var re *ResponseError
		if !errors.As(resp.Err(), &re) {
			t.Fatalf("Err() = %v, want *ResponseError", resp.Err())
		}
		if re.InvocationID != "inv-2" || re.Message != "No such operation" {
			t.Errorf("ResponseError = %+v", re)
		}
	})

	t.Run("wire omits empty error", func(t *testing.T) {
		data, err := Serialize(Success("inv-3", []byte("ok")))
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		var raw map[string]any
		if err := Deserialize(data, &raw); err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if _, ok := raw["error"]; ok {
			t.Error("empty error must be omitted")
		}
		if raw["invocation_id"] != "inv-3" {
			t.Errorf("invocation_id = %v", raw["invocation_id"])
		}
	})
}
