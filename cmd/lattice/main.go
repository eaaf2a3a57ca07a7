package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cel"
	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/runtime"
)

// errReported marks failures that were already rendered to the user.
var errReported = errors.New("reported")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	return newRootCmd(viper.New()).Execute()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lattice",
		Short: "Talk to a wasmbus lattice",
		Long: `Lattice client commands.

Invocations:
  lattice invoke         Sign and send an invocation to a provider or actor

Links and metadata:
  lattice link           Put, delete and list link definitions
  lattice claims         Publish and query actor claims
  lattice refmap         Publish and query reference maps

Providers:
  lattice health         Probe a provider link
  lattice shutdown       Ask a provider link to stop

Utilities:
  lattice keys           Manage host keys
  lattice names          Local @names for entity keys
  lattice cache serve    Answer claims and reference map queries`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			config.SetCommonDefaults(v)
			return config.Load(v, "WASMBUS", configFile, config.DefaultDataDir())
		},
	}

	f := rootCmd.PersistentFlags()
	f.String("config", "", "config file path")
	f.String("data-dir", "", "data directory (default ~/.wasmbus)")
	f.String("nats", "", "NATS server url (default $NATS_URL or nats://127.0.0.1:4222)")
	f.String("prefix", "", "lattice namespace prefix (default \"default\")")
	f.Duration("timeout", 0, "request timeout (default 5s)")
	f.String("seed", "", "host seed to sign invocations with (default: keyring default, else ephemeral)")
	f.String("seed-file", "", "file holding the host seed")
	f.String("key", "", "keyring alias or public key to sign with")
	f.StringP("output", "o", "text", "output format (text, json, yaml, markdown)")
	f.String("log-level", "", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("nats_url", f.Lookup("nats"))
	_ = v.BindPFlag("prefix", f.Lookup("prefix"))
	_ = v.BindPFlag("timeout", f.Lookup("timeout"))
	_ = v.BindPFlag("seed", f.Lookup("seed"))
	_ = v.BindPFlag("seed_file", f.Lookup("seed-file"))
	_ = v.BindPFlag("key", f.Lookup("key"))
	_ = v.BindPFlag("output", f.Lookup("output"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))

	rootCmd.AddCommand(
		newKeysCmd(v),
		newInvokeCmd(v),
		newLinkCmd(v),
		newClaimsCmd(v),
		newRefMapCmd(v),
		newHealthCmd(v),
		newShutdownCmd(v),
		newCacheCmd(v),
		newNamesCmd(v),
	)
	return rootCmd
}

// runtimeFactory builds the extensions a command's runtime is assembled
// from. Tests swap it for an in-process transport.
var runtimeFactory = func(v *viper.Viper) []runtime.Extension {
	return []runtime.Extension{cli.WithNATS(v.GetString("nats_url"))}
}

// withLattice runs fn with a lattice client connected per v.
func withLattice(v *viper.Viper, name string, fn func(ctx context.Context, c *lattice.Client, out *cli.Output) error) error {
	timeout := config.BaseConfig{Timeout: v.GetDuration("timeout")}.ResolvedTimeout()
	return cli.RunCommand(cli.CommandConfig{
		Name:       name,
		Viper:      v,
		Timeout:    timeout,
		Extensions: runtimeFactory(v),
		Client:     fn,
	})
}

// compileFilter compiles a --filter expression. An empty expression is no filter.
func compileFilter(expr string, keys map[string]bool) (*cel.Filter, error) {
	if expr == "" {
		return nil, nil
	}
	f, err := cel.Compile(expr, keys)
	if err != nil {
		return nil, fmt.Errorf("--filter: %w", err)
	}
	return f, nil
}
