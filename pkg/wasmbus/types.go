package wasmbus

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// LinkDefinition binds one actor to one provider link together with the
// configuration values the provider needs to serve it.
type LinkDefinition struct {
	ActorID    string            `msgpack:"actor_id" json:"actor_id"`
	ProviderID string            `msgpack:"provider_id" json:"provider_id"`
	LinkName   string            `msgpack:"link_name" json:"link_name"`
	ContractID string            `msgpack:"contract_id" json:"contract_id"`
	Values     map[string]string `msgpack:"values" json:"values"`
}

// Value returns a configuration value by case-insensitive key.
func (ld LinkDefinition) Value(key string) (string, bool) {
	if v, ok := ld.Values[key]; ok {
		return v, true
	}
	for k, v := range ld.Values {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// LinkDefinitionList is the reply to a link definition query.
type LinkDefinitionList struct {
	LinkDefinitions []LinkDefinition `msgpack:"link_definitions"`
}

// ActorClaims are the signed capability claims of an actor as cached on the lattice.
type ActorClaims struct {
	Issuer       string   `msgpack:"iss" json:"iss"`
	Subject      string   `msgpack:"sub" json:"sub"`
	IssuedAt     int64    `msgpack:"iat" json:"iat"`
	Expires      int64    `msgpack:"exp,omitempty" json:"exp,omitempty"`
	NotBefore    int64    `msgpack:"nbf,omitempty" json:"nbf,omitempty"`
	ID           string   `msgpack:"jti" json:"jti"`
	Name         string   `msgpack:"name" json:"name"`
	Capabilities []string `msgpack:"caps" json:"caps"`
	Tags         []string `msgpack:"tags" json:"tags,omitempty"`
	Revision     int32    `msgpack:"rev" json:"rev"`
	Version      string   `msgpack:"ver" json:"ver,omitempty"`
}

// ClaimsList is the reply to a claims query.
type ClaimsList struct {
	Claims []ActorClaims `msgpack:"claims"`
}

// HealthResponse is the reply to a provider health probe.
type HealthResponse struct {
	Healthy bool   `msgpack:"healthy" json:"healthy"`
	Message string `msgpack:"message" json:"message,omitempty"`
}

// Reference is an alias that resolves to an entity: an OCI reference or a call alias.
type Reference interface {
	// Kind returns the variant name, "OCI" or "CallAlias".
	Kind() string
	// Value returns the alias itself.
	Value() string

	reference()
}

// OCIReference aliases an entity by the OCI image it was started from.
type OCIReference string

func (r OCIReference) Kind() string  { return "OCI" }
func (r OCIReference) Value() string { return string(r) }
func (OCIReference) reference()      {}

// CallAlias aliases an actor by a human-chosen call name.
type CallAlias string

func (a CallAlias) Kind() string  { return "CallAlias" }
func (a CallAlias) Value() string { return string(a) }
func (CallAlias) reference()      {}

// ReferenceKey is a stable cache key for a reference, e.g. "OCI:wasmcloud.azurecr.io/echo:0.2.0".
func ReferenceKey(r Reference) string {
	return r.Kind() + ":" + r.Value()
}

// ReferenceMap maps an alias to the entity it stands for.
type ReferenceMap struct {
	Kind   Reference
	Target Entity
}

// ReferenceMapList is the reply to a reference map query.
type ReferenceMapList struct {
	ReferenceMaps []ReferenceMap `msgpack:"reference_maps"`
}

type wireReference struct {
	Reference Reference
}

func (w wireReference) EncodeMsgpack(enc *msgpack.Encoder) error {
	if w.Reference == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(w.Reference.Kind()); err != nil {
		return err
	}
	return enc.EncodeString(w.Reference.Value())
}

func (w *wireReference) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return fmt.Errorf("decode reference: %w", err)
	}
	if n == -1 {
		w.Reference = nil
		return nil
	}
	if n != 1 {
		return fmt.Errorf("decode reference: expected one variant, got %d keys", n)
	}
	kind, err := dec.DecodeString()
	if err != nil {
		return err
	}
	value, err := dec.DecodeString()
	if err != nil {
		return err
	}
	switch kind {
	case "OCI":
		w.Reference = OCIReference(value)
	case "CallAlias":
		w.Reference = CallAlias(value)
	default:
		return fmt.Errorf("decode reference: unknown variant %q", kind)
	}
	return nil
}

type referenceMapWire struct {
	Kind   wireReference `msgpack:"kind"`
	Target wireEntity    `msgpack:"target"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (m ReferenceMap) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(referenceMapWire{
		Kind:   wireReference{Reference: m.Kind},
		Target: wireEntity{Entity: m.Target},
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (m *ReferenceMap) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w referenceMapWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	m.Kind = w.Kind.Reference
	m.Target = w.Target.Entity
	return nil
}
