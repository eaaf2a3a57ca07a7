// Package config provides shared configuration loading and defaults for
// wasmbus processes.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// Common contains default values shared across wasmbus commands.
var Common = struct {
	NatsURL   string
	Prefix    string
	Timeout   time.Duration
	LogLevel  string
	LogFormat string
	DataDir   string
}{
	NatsURL:   "nats://127.0.0.1:4222",
	Prefix:    wasmbus.DefaultPrefix,
	Timeout:   5 * time.Second,
	LogLevel:  "info",
	LogFormat: "text",
	DataDir:   DefaultDataDir(),
}

// DefaultDataDir returns the default data directory (~/.wasmbus).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wasmbus"
	}
	return filepath.Join(home, ".wasmbus")
}

// ProviderDefaults contains default values for a capability provider process.
var ProviderDefaults = struct {
	LinkName     string
	Concurrency  int
	MetricsAddr  string
	ServiceName  string
	OTLPProtocol string
}{
	LinkName:     wasmbus.DefaultLinkName,
	Concurrency:  64,
	MetricsAddr:  ":9090",
	ServiceName:  "wasmbus-kvprovider",
	OTLPProtocol: "http",
}
