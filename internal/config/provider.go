package config

import (
	"fmt"
	"strings"

	"github.com/nats-io/nkeys"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/observability"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// ProviderEnvPrefix is the environment prefix of a capability provider process.
const ProviderEnvPrefix = "WASMBUS_KV"

// ProviderConfig configures a capability provider process.
type ProviderConfig struct {
	BaseConfig   `mapstructure:",squash"`
	ProviderKey  string   `mapstructure:"provider_key"`
	LinkName     string   `mapstructure:"link_name"`
	ValidIssuers []string `mapstructure:"valid_issuers"`
	Concurrency  int      `mapstructure:"concurrency"`
	DefaultURL   string   `mapstructure:"default_url"`
	Embedded     bool     `mapstructure:"embedded"`
	ReadOnly     bool     `mapstructure:"read_only"`
}

// hostEnv maps config keys to the unprefixed variables a lattice host sets
// when it launches a provider.
var hostEnv = map[string]string{
	"prefix":        "LATTICE_RPC_PREFIX",
	"provider_key":  "PROVIDER_KEY",
	"link_name":     "PROVIDER_LINK_NAME",
	"nats_url":      "NATS_URL",
	"valid_issuers": "VALID_ISSUERS",
}

// BindProviderFlags binds the provider specific flags.
func BindProviderFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("provider-key", "", "public key of this provider (V...)")
	f.String("link-name", "", "link name served (default \"default\")")
	f.StringSlice("valid-issuers", nil, "cluster keys allowed to sign invocations")
	f.Int("concurrency", 0, "maximum invocations handled at once")
	f.String("default-url", "", "backing store url for links without a URL value")
	f.Bool("embedded", false, "serve on an in-process bus instead of NATS")
	f.Bool("read-only", false, "reject operations that modify the store")

	_ = v.BindPFlag("provider_key", f.Lookup("provider-key"))
	_ = v.BindPFlag("link_name", f.Lookup("link-name"))
	_ = v.BindPFlag("valid_issuers", f.Lookup("valid-issuers"))
	_ = v.BindPFlag("concurrency", f.Lookup("concurrency"))
	_ = v.BindPFlag("default_url", f.Lookup("default-url"))
	_ = v.BindPFlag("embedded", f.Lookup("embedded"))
	_ = v.BindPFlag("read_only", f.Lookup("read-only"))
}

func setProviderDefaults(v *viper.Viper) {
	v.SetDefault("link_name", ProviderDefaults.LinkName)
	v.SetDefault("concurrency", ProviderDefaults.Concurrency)
	v.SetDefault("observability.metrics_addr", ProviderDefaults.MetricsAddr)
	v.SetDefault("observability.service_name", ProviderDefaults.ServiceName)
	v.SetDefault("observability.otlp_protocol", ProviderDefaults.OTLPProtocol)
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	// Registered so AutomaticEnv can see them during Unmarshal.
	v.SetDefault("default_url", "")
	v.SetDefault("embedded", false)
	v.SetDefault("read_only", false)
}

// LoadProvider loads a ProviderConfig. Prefixed variables (WASMBUS_KV_*)
// win over the host supplied ones.
func LoadProvider(v *viper.Viper, configFile string) (ProviderConfig, error) {
	setProviderDefaults(v)
	for key, env := range hostEnv {
		envKey := ProviderEnvPrefix + "_" + strings.ToUpper(key)
		if err := v.BindEnv(key, envKey, env); err != nil {
			return ProviderConfig{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg ProviderConfig
	if err := LoadInto(v, ProviderEnvPrefix, configFile, &cfg, DefaultDataDir()); err != nil {
		return ProviderConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

// Validate checks keys and numeric bounds.
func (c ProviderConfig) Validate() error {
	if c.ProviderKey != "" && !wasmbus.IsProviderKey(c.ProviderKey) {
		return fmt.Errorf("provider_key %q is not a provider public key", c.ProviderKey)
	}
	for _, iss := range c.ValidIssuers {
		if !nkeys.IsValidPublicServerKey(iss) {
			return fmt.Errorf("valid_issuers: %q is not a host public key", iss)
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if r := c.Observability.TraceSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.trace_sample_ratio must be within [0, 1], got %v", r)
	}
	return nil
}

// ObsConfig returns the subset the observability package consumes.
func (o ObservabilityConfig) ObsConfig() observability.ObsConfig {
	return observability.ObsConfig{
		LogLevel:       o.LogLevel,
		LogFormat:      o.LogFormat,
		OTLPEndpoint:   o.OTLPEndpoint,
		OTLPProtocol:   o.OTLPProtocol,
		ServiceName:    o.ServiceName,
		ServiceVersion: o.ServiceVersion,
		SampleRatio:    o.TraceSampleRatio,
	}
}

// TraceAttributes identify the provider in exported traces.
func (c ProviderConfig) TraceAttributes(contractID string) map[string]string {
	return map[string]string{
		"wasmbus.provider_key": c.ProviderKey,
		"wasmbus.link_name":    c.LinkName,
		"wasmbus.contract":     contractID,
		"wasmbus.lattice":      c.ResolvedPrefix(),
	}
}
