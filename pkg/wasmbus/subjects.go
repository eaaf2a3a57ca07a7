package wasmbus

import "strings"

const (
	subjectRoot = "wasmbus.rpc"

	// DefaultPrefix is the lattice namespace used when none is configured.
	DefaultPrefix = "default"
	// DefaultLinkName is the link name used when none is configured.
	DefaultLinkName = "default"
)

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

func linkOrDefault(link string) string {
	if link == "" {
		return DefaultLinkName
	}
	return link
}

func join(parts ...string) string { return strings.Join(parts, ".") }

// ProviderSubject is the subject a provider link receives invocations on.
func ProviderSubject(prefix, providerKey, linkName string) string {
	return join(subjectRoot, prefixOrDefault(prefix), providerKey, linkOrDefault(linkName))
}

// ActorSubject is the subject an actor receives invocations on.
func ActorSubject(prefix, actorKey string) string {
	return join(subjectRoot, prefixOrDefault(prefix), actorKey)
}

// LinkDefsGetSubject answers link definition queries for one provider link.
func LinkDefsGetSubject(prefix, providerKey, linkName string) string {
	return join(ProviderSubject(prefix, providerKey, linkName), "linkdefs", "get")
}

// LinkDefsPutSubject announces a new link to one provider link.
func LinkDefsPutSubject(prefix, providerKey, linkName string) string {
	return join(ProviderSubject(prefix, providerKey, linkName), "linkdefs", "put")
}

// LinkDefsDelSubject announces a removed link to one provider link.
func LinkDefsDelSubject(prefix, providerKey, linkName string) string {
	return join(ProviderSubject(prefix, providerKey, linkName), "linkdefs", "del")
}

// ShutdownSubject asks one provider link to terminate gracefully.
func ShutdownSubject(prefix, providerKey, linkName string) string {
	return join(ProviderSubject(prefix, providerKey, linkName), "shutdown")
}

// HealthSubject probes one provider link for liveness.
func HealthSubject(prefix, providerKey, linkName string) string {
	return join(ProviderSubject(prefix, providerKey, linkName), "health")
}

func ClaimsGetSubject(prefix string) string {
	return join(subjectRoot, prefixOrDefault(prefix), "claims", "get")
}

func ClaimsPutSubject(prefix string) string {
	return join(subjectRoot, prefixOrDefault(prefix), "claims", "put")
}

func RefMapsGetSubject(prefix string) string {
	return join(subjectRoot, prefixOrDefault(prefix), "refmaps", "get")
}

func RefMapsPutSubject(prefix string) string {
	return join(subjectRoot, prefixOrDefault(prefix), "refmaps", "put")
}
