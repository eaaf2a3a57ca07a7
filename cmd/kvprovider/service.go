package main

import (
	"fmt"

	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/internal/keyvalue"
	"github.com/gezibash/wasmbus/internal/kvstore"
	"github.com/gezibash/wasmbus/internal/middleware"
	"github.com/gezibash/wasmbus/internal/observability"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/provider"
	"github.com/gezibash/wasmbus/pkg/transport"
)

// newServer assembles the key-value provider: registry, dispatcher and
// server bound to tr.
func newServer(cfg config.ProviderConfig, tr transport.Transport, metrics *observability.Metrics, log *logging.Logger) (*provider.Server[kvstore.Store], error) {
	reg := provider.NewRegistry(
		keyvalue.OpenerWithDefault(cfg.DefaultURL, metrics),
		provider.WithRegistryMetrics(metrics),
	)
	disp := provider.NewDispatcher(reg, provider.DispatcherConfig{
		Timeout: cfg.ResolvedTimeout(),
		Metrics: metrics,
		Log:     log,
	})
	keyvalue.Register(disp)

	var hooks *middleware.Chain
	if cfg.ReadOnly {
		hooks = &middleware.Chain{
			Pre: []middleware.Hook{middleware.DenyOperations("provider is read-only", keyvalue.MutatingOperations...)},
		}
	}

	srv, err := provider.NewServer(provider.ServerConfig[kvstore.Store]{
		Prefix:       cfg.ResolvedPrefix(),
		ProviderKey:  cfg.ProviderKey,
		LinkName:     cfg.LinkName,
		ContractID:   keyvalue.ContractID,
		ValidIssuers: cfg.ValidIssuers,
		Transport:    tr,
		Registry:     reg,
		Dispatcher:   disp,
		Metrics:      metrics,
		Log:          log,
		Hooks:        hooks,
		Concurrency:  cfg.Concurrency,
	})
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("create provider server: %w", err)
	}
	return srv, nil
}

// embeddedProviderKey derives a provider-shaped key from the host key for
// runs without a configured key.
func embeddedProviderKey(hostKey string) string {
	return "V" + hostKey[1:]
}
