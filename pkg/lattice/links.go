package lattice

import (
	"context"
	"fmt"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// PutLinkDefinition announces a link to the provider named by ld. Providers
// ignore puts for actors they already serve.
func (c *Client) PutLinkDefinition(ctx context.Context, ld wasmbus.LinkDefinition) error {
	if ld.ActorID == "" || ld.ProviderID == "" {
		return fmt.Errorf("%w: link definition needs actor and provider", wberrors.ErrInvalidInput)
	}
	return c.publish(ctx, wasmbus.LinkDefsPutSubject(c.prefix, ld.ProviderID, ld.LinkName), ld)
}

// DelLinkDefinition removes the link between actor and provider.
func (c *Client) DelLinkDefinition(ctx context.Context, actorID, providerID, linkName, contractID string) error {
	ld := wasmbus.LinkDefinition{
		ActorID:    actorID,
		ProviderID: providerID,
		LinkName:   linkName,
		ContractID: contractID,
		Values:     map[string]string{},
	}
	return c.publish(ctx, wasmbus.LinkDefsDelSubject(c.prefix, providerID, linkName), ld)
}

// GetLinkDefinitions asks one instance of a provider for its links.
func (c *Client) GetLinkDefinitions(ctx context.Context, providerID, linkName string) ([]wasmbus.LinkDefinition, error) {
	var list wasmbus.LinkDefinitionList
	if err := c.request(ctx, wasmbus.LinkDefsGetSubject(c.prefix, providerID, linkName), &list); err != nil {
		return nil, err
	}
	return list.LinkDefinitions, nil
}

// PutClaims publishes actor claims to every cache on the lattice.
func (c *Client) PutClaims(ctx context.Context, claims wasmbus.ActorClaims) error {
	return c.publish(ctx, wasmbus.ClaimsPutSubject(c.prefix), claims)
}

// GetClaims returns the claims known to the lattice.
func (c *Client) GetClaims(ctx context.Context) ([]wasmbus.ActorClaims, error) {
	var list wasmbus.ClaimsList
	if err := c.request(ctx, wasmbus.ClaimsGetSubject(c.prefix), &list); err != nil {
		return nil, err
	}
	return list.Claims, nil
}

// PutReferenceMap publishes an alias for target.
func (c *Client) PutReferenceMap(ctx context.Context, ref wasmbus.Reference, target wasmbus.Entity) error {
	if ref == nil || target == nil {
		return fmt.Errorf("%w: reference and target required", wberrors.ErrInvalidInput)
	}
	return c.publish(ctx, wasmbus.RefMapsPutSubject(c.prefix), wasmbus.ReferenceMap{Kind: ref, Target: target})
}

// GetReferenceMaps returns the aliases known to the lattice.
func (c *Client) GetReferenceMaps(ctx context.Context) ([]wasmbus.ReferenceMap, error) {
	var list wasmbus.ReferenceMapList
	if err := c.request(ctx, wasmbus.RefMapsGetSubject(c.prefix), &list); err != nil {
		return nil, err
	}
	return list.ReferenceMaps, nil
}

// Health probes a provider link.
func (c *Client) Health(ctx context.Context, providerID, linkName string) (*wasmbus.HealthResponse, error) {
	var resp wasmbus.HealthResponse
	if err := c.request(ctx, wasmbus.HealthSubject(c.prefix, providerID, linkName), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks every instance of a provider link to stop.
func (c *Client) Shutdown(ctx context.Context, providerID, linkName string) error {
	return c.publish(ctx, wasmbus.ShutdownSubject(c.prefix, providerID, linkName), struct{}{})
}
