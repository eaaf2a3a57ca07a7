package config

import (
	"os"
	"strings"
	"time"
)

// BaseConfig contains configuration fields shared across wasmbus commands.
// Command configs embed this struct with mapstructure:",squash".
type BaseConfig struct {
	DataDir       string              `mapstructure:"data_dir"`
	NatsURL       string              `mapstructure:"nats_url"`
	Prefix        string              `mapstructure:"prefix"`
	Timeout       time.Duration       `mapstructure:"timeout"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	// TraceSampleRatio is the fraction of new traces recorded.
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
}

// ResolvedNatsURL returns the NATS url, checking config > NATS_URL env > default.
func (c BaseConfig) ResolvedNatsURL() string {
	if c.NatsURL != "" {
		return c.NatsURL
	}
	if u := strings.TrimSpace(os.Getenv("NATS_URL")); u != "" {
		return u
	}
	return Common.NatsURL
}

// ResolvedPrefix returns the lattice prefix, checking config >
// LATTICE_RPC_PREFIX env > default.
func (c BaseConfig) ResolvedPrefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	if p := strings.TrimSpace(os.Getenv("LATTICE_RPC_PREFIX")); p != "" {
		return p
	}
	return Common.Prefix
}

// ResolvedTimeout returns the request timeout, or the default when unset.
func (c BaseConfig) ResolvedTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return Common.Timeout
}

// ResolvedDataDir returns the data directory from config, or the default (~/.wasmbus).
func (c BaseConfig) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}
