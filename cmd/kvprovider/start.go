package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/bus"
	"github.com/gezibash/wasmbus/internal/cache"
	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/internal/keyvalue"
	"github.com/gezibash/wasmbus/internal/observability"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/runtime"
	"github.com/gezibash/wasmbus/pkg/transport"
	natstransport "github.com/gezibash/wasmbus/pkg/transport/nats"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the provider",
		Long: `Start the key-value provider and serve invocations until stopped.

The lattice host normally launches the provider with LATTICE_RPC_PREFIX,
PROVIDER_KEY, PROVIDER_LINK_NAME, NATS_URL and VALID_ISSUERS set. Every
setting can also come from flags, a config file or WASMBUS_KV_* variables.

Examples:
  kvprovider start --provider-key VAB...      # serve on the local NATS server
  kvprovider start --embedded --log-level debug
  kvprovider start --default-url sqlite:///var/lib/kv.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadProvider(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return start(cfg)
		},
	}

	config.BindCommonFlags(cmd, v)
	config.BindServerFlags(cmd, v)
	config.BindProviderFlags(cmd, v)
	return cmd
}

func start(cfg config.ProviderConfig) error {
	obsCfg := cfg.Observability.ObsConfig()
	obsCfg.Attributes = cfg.TraceAttributes(keyvalue.ContractID)
	obs, err := observability.New(context.Background(), obsCfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = obs.Close(ctx)
	}()
	log := logging.New(obs.Logger)

	rt, err := runtime.New("kvprovider").
		Logger(log).
		HandleSignals(false).
		Use(connect(cfg)).
		Build()
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer func() { _ = rt.Close() }()
	tr := transport.From(rt)

	if cfg.ProviderKey == "" {
		if !cfg.Embedded {
			return errors.New("provider_key is required (set PROVIDER_KEY or --provider-key)")
		}
		cfg.ProviderKey = embeddedProviderKey(rt.HostKey())
		log.Warn("no provider key configured, using an ephemeral one", "provider", logging.FormatKey(cfg.ProviderKey))
	}
	if cfg.Embedded {
		// Nothing else answers claims and reference-map queries on a private bus.
		c := cache.New(tr, cache.Config{Prefix: cfg.ResolvedPrefix(), Log: log})
		if err := c.Start(); err != nil {
			return fmt.Errorf("start cache: %w", err)
		}
		rt.OnClose(c.Close)
	}

	// Local halts are signed with this process's host key.
	if !slices.Contains(cfg.ValidIssuers, rt.HostKey()) {
		cfg.ValidIssuers = append(cfg.ValidIssuers, rt.HostKey())
	}
	srv, err := newServer(cfg, tr, obs.Metrics, log)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go haltOnSignal(rt.Context(), sigs, rt.Signer(), srv, rt.Shutdown, log)

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		obs.ServeMetrics(rt.Context(), addr, srv.Healthy)
	}

	log.Info("kvprovider starting",
		"provider", logging.FormatKey(cfg.ProviderKey),
		"link_name", cfg.LinkName,
		"prefix", cfg.ResolvedPrefix(),
		"embedded", cfg.Embedded,
	)
	if err := srv.Run(rt.Context()); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	log.Info("kvprovider stopped")
	return nil
}

// connect attaches the lattice transport: NATS, or an in-process bus when
// running embedded.
func connect(cfg config.ProviderConfig) runtime.Extension {
	return func(rt *runtime.Runtime) error {
		if cfg.Embedded {
			return transport.Attach(bus.New(bus.WithLogger(rt.Log())))(rt)
		}
		tr, err := natstransport.Connect(natstransport.Config{
			URL:     cfg.ResolvedNatsURL(),
			Name:    "kvprovider",
			Timeout: cfg.ResolvedTimeout(),
			Log:     rt.Log(),
		})
		if err != nil {
			return err
		}
		return transport.Attach(tr)(rt)
	}
}
