// Package wasmbus implements the lattice invocation protocol: entity
// addressing, signed invocation envelopes, anti-forgery validation, the
// wire types exchanged between hosts and capability providers, and the
// subject naming scheme they are exchanged on.
package wasmbus

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// URLScheme prefixes every entity URL.
const URLScheme = "wasmbus"

// SystemActor is the reserved actor identity used by halt invocations.
const SystemActor = "system"

// ActorKeyLength is the length of an encoded actor public key.
const ActorKeyLength = 56

// Entity is the origin or target of an invocation: an Actor or a Capability.
type Entity interface {
	// URL returns the canonical wasmbus:// address. It feeds the invocation
	// hash, so its output must never change for a given value.
	URL() string
	// Key returns the actor public key or the provider id.
	Key() string

	entity()
}

// Actor addresses an actor by public key.
type Actor struct {
	PublicKey string
}

// URL implements Entity.
func (a Actor) URL() string { return URLScheme + "://" + a.PublicKey }

// Key implements Entity.
func (a Actor) Key() string { return a.PublicKey }

func (a Actor) String() string { return a.URL() }

func (Actor) entity() {}

// Capability addresses one link of a capability provider.
type Capability struct {
	ID         string
	ContractID string
	LinkName   string
}

// URL implements Entity.
func (c Capability) URL() string {
	contract := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(c.ContractID, ":", "/"), " ", "_"))
	link := strings.ToLower(strings.ReplaceAll(c.LinkName, " ", "_"))
	return URLScheme + "://" + contract + "/" + link + "/" + c.ID
}

// Key implements Entity.
func (c Capability) Key() string { return c.ID }

func (c Capability) String() string { return c.URL() }

func (Capability) entity() {}

// IsActorKey reports whether s has the shape of an actor public key:
// 56 upper-case base32 characters starting with 'M'.
func IsActorKey(s string) bool { return isKey(s, 'M') }

// IsProviderKey reports whether s has the shape of a provider public key,
// which starts with 'V'.
func IsProviderKey(s string) bool { return isKey(s, 'V') }

func isKey(s string, prefix byte) bool {
	if len(s) != ActorKeyLength || s[0] != prefix {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}

const (
	tagActor      = "Actor"
	tagCapability = "Capability"
)

type capabilityFields struct {
	ID         string `msgpack:"id"`
	ContractID string `msgpack:"contract_id"`
	LinkName   string `msgpack:"link_name"`
}

// wireEntity carries an Entity in its externally tagged map form:
// {"Actor": "M..."} or {"Capability": {"id": ..., "contract_id": ..., "link_name": ...}}.
type wireEntity struct {
	Entity Entity
}

var (
	_ msgpack.CustomEncoder = wireEntity{}
	_ msgpack.CustomDecoder = (*wireEntity)(nil)
)

func (w wireEntity) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch e := w.Entity.(type) {
	case Actor:
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeString(tagActor); err != nil {
			return err
		}
		return enc.EncodeString(e.PublicKey)
	case Capability:
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeString(tagCapability); err != nil {
			return err
		}
		return enc.Encode(capabilityFields(e))
	case nil:
		return enc.EncodeNil()
	default:
		return fmt.Errorf("wasmbus: unsupported entity type %T", w.Entity)
	}
}

func (w *wireEntity) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return fmt.Errorf("decode entity: %w", err)
	}
	if n == -1 {
		w.Entity = nil
		return nil
	}
	if n != 1 {
		return fmt.Errorf("decode entity: expected one variant, got %d keys", n)
	}
	tag, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("decode entity tag: %w", err)
	}
	switch tag {
	case tagActor:
		pk, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("decode actor: %w", err)
		}
		w.Entity = Actor{PublicKey: pk}
	case tagCapability:
		var c capabilityFields
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("decode capability: %w", err)
		}
		w.Entity = Capability(c)
	default:
		return fmt.Errorf("decode entity: unknown variant %q", tag)
	}
	return nil
}
