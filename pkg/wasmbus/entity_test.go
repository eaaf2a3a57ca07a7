package wasmbus

import (
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

const testActorKey = "MB2ZQB6ROOMAYBO4ZCTFYWN7YIVBWA3MTKZYAQKJMTIHE2ELLRW2E3ZW"

func TestEntityURL(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		want   string
	}{
		{
			name:   "actor",
			entity: Actor{PublicKey: testActorKey},
			want:   "wasmbus://" + testActorKey,
		},
		{
			name:   "capability",
			entity: Capability{ID: "VPROVIDER", ContractID: "wasmcloud:messaging", LinkName: "default"},
			want:   "wasmbus://wasmcloud/messaging/default/VPROVIDER",
		},
		{
			name:   "capability normalizes case and spaces",
			entity: Capability{ID: "VPROVIDER", ContractID: "WasmCloud:Key Value", LinkName: "Back Up"},
			want:   "wasmbus://wasmcloud/key_value/back_up/VPROVIDER",
		},
		{
			name:   "capability with empty fields",
			entity: Capability{},
			want:   "wasmbus:////",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entity.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
			if got := tt.entity.(interface{ String() string }).String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntityKey(t *testing.T) {
	if got := (Actor{PublicKey: testActorKey}).Key(); got != testActorKey {
		t.Errorf("Actor.Key() = %q", got)
	}
	if got := (Capability{ID: "VPROVIDER"}).Key(); got != "VPROVIDER" {
		t.Errorf("Capability.Key() = %q", got)
	}
}

func TestIsActorKey(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{testActorKey, true},
		{"wasmcloud:keyvalue", false},
		{"M" + strings.Repeat("A", 54), false},
		{"V" + strings.Repeat("A", 55), false},
		{"M" + strings.Repeat("a", 55), false},
		{"M" + strings.Repeat("1", 55), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsActorKey(tt.in); got != tt.want {
			t.Errorf("IsActorKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsProviderKey(t *testing.T) {
	if !IsProviderKey("V" + strings.Repeat("B", 55)) {
		t.Error("provider-shaped key rejected")
	}
	if IsProviderKey(testActorKey) {
		t.Error("actor key accepted as provider key")
	}
}

func TestEntityWireForm(t *testing.T) {
	t.Run("actor", func(t *testing.T) {
		data, err := msgpack.Marshal(wireEntity{Entity: Actor{PublicKey: testActorKey}})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var m map[string]any
		if err := msgpack.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if m["Actor"] != testActorKey {
			t.Errorf("wire form = %v", m)
		}
	})

	t.Run("capability", func(t *testing.T) {
		want := Capability{ID: "VPROVIDER", ContractID: "wasmcloud:keyvalue", LinkName: "default"}
		data, err := msgpack.Marshal(wireEntity{Entity: want})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var m map[string]map[string]string
		if err := msgpack.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		fields := m["Capability"]
		if fields["id"] != "VPROVIDER" || fields["contract_id"] != "wasmcloud:keyvalue" || fields["link_name"] != "default" {
			t.Errorf("wire form = %v", m)
		}

		var got wireEntity
		if err := msgpack.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Entity != Entity(want) {
			t.Errorf("decoded = %#v, want %#v", got.Entity, want)
		}
	})

	t.Run("unknown variant", func(t *testing.T) {
		data, _ := msgpack.Marshal(map[string]string{"Host": "N123"})
		var got wireEntity
		if err := msgpack.Unmarshal(data, &got); err == nil {
			t.Fatal("expected error for unknown variant")
		}
	})

	t.Run("two keys", func(t *testing.T) {
		data, _ := msgpack.Marshal(map[string]string{"Actor": "M1", "Other": "x"})
		var got wireEntity
		if err := msgpack.Unmarshal(data, &got); err == nil {
			t.Fatal("expected error for multi-key map")
		}
	})
}
