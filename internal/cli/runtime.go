package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/runtime"
	"github.com/gezibash/wasmbus/pkg/transport"
	natstransport "github.com/gezibash/wasmbus/pkg/transport/nats"
)

// NewBuilder creates a runtime builder configured from viper settings.
// Client commands log to {data_dir}/log/cli.log instead of stdout so that
// rendered output stays clean.
func NewBuilder(name string, v *viper.Viper) *runtime.Builder {
	builder := runtime.New(name)

	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	logDir := filepath.Join(dataDir, "log")
	if err := os.MkdirAll(logDir, 0o700); err == nil {
		f, err := os.OpenFile(filepath.Join(logDir, "cli.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is constructed from known data dir
		if err == nil {
			builder = builder.LogWriter(f)
		}
	}

	level := v.GetString("observability.log_level")
	format := v.GetString("observability.log_format")
	if level != "" {
		if format == "" {
			format = "text"
		}
		builder = builder.Logging(level, format)
	}

	return builder
}

// WithNATS connects to a NATS server and attaches it as the runtime
// transport. The url is resolved from: explicit url > NATS_URL env > default.
func WithNATS(url string) runtime.Extension {
	return func(rt *runtime.Runtime) error {
		resolved := config.BaseConfig{NatsURL: url}.ResolvedNatsURL()
		tr, err := natstransport.Connect(natstransport.Config{
			URL:  resolved,
			Name: rt.Name(),
			Log:  rt.Log(),
		})
		if err != nil {
			return err
		}
		return transport.Attach(tr)(rt)
	}
}

// Lattice builds a lattice client over the runtime's transport, signing
// with the runtime's host key.
func Lattice(rt *runtime.Runtime, v *viper.Viper) (*lattice.Client, error) {
	base := config.BaseConfig{Prefix: v.GetString("prefix"), Timeout: v.GetDuration("timeout")}
	return lattice.New(transport.From(rt), lattice.Config{
		Prefix:  base.ResolvedPrefix(),
		Signer:  rt.Signer(),
		Timeout: base.ResolvedTimeout(),
		Log:     rt.Log(),
	})
}
