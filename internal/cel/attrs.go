package cel

import "github.com/gezibash/wasmbus/pkg/wasmbus"

// Variables visible to link definition filters.
var LinkKeys = map[string]bool{
	"actor":     true,
	"provider":  true,
	"link_name": true,
	"contract":  true,
	"values":    true,
}

// LinkAttrs exposes a link definition to a filter.
func LinkAttrs(ld wasmbus.LinkDefinition) map[string]any {
	values := ld.Values
	if values == nil {
		values = map[string]string{}
	}
	return map[string]any{
		"actor":     ld.ActorID,
		"provider":  ld.ProviderID,
		"link_name": ld.LinkName,
		"contract":  ld.ContractID,
		"values":    values,
	}
}

// Variables visible to claims filters.
var ClaimsKeys = map[string]bool{
	"subject": true,
	"issuer":  true,
	"name":    true,
	"caps":    true,
	"tags":    true,
	"rev":     true,
	"version": true,
}

// ClaimsAttrs exposes actor claims to a filter.
func ClaimsAttrs(c wasmbus.ActorClaims) map[string]any {
	return map[string]any{
		"subject": c.Subject,
		"issuer":  c.Issuer,
		"name":    c.Name,
		"caps":    nonNil(c.Capabilities),
		"tags":    nonNil(c.Tags),
		"rev":     int64(c.Revision),
		"version": c.Version,
	}
}

// Variables visible to reference map filters.
var RefMapKeys = map[string]bool{
	"kind":      true,
	"reference": true,
	"target":    true,
}

// RefMapAttrs exposes a reference map to a filter. target is the entity URL.
func RefMapAttrs(m wasmbus.ReferenceMap) map[string]any {
	attrs := map[string]any{"kind": "", "reference": "", "target": ""}
	if m.Kind != nil {
		attrs["kind"] = m.Kind.Kind()
		attrs["reference"] = m.Kind.Value()
	}
	if m.Target != nil {
		attrs["target"] = m.Target.URL()
	}
	return attrs
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
