package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/runtime"
)

// CommandConfig describes one lattice CLI command run. Set Client for
// commands that talk to the lattice over RPC and Run for commands that need
// the runtime itself, such as serving a cache.
type CommandConfig struct {
	Name  string
	Viper *viper.Viper

	// Timeout bounds the whole command. Zero means none.
	Timeout time.Duration

	// Extensions attach the transport, usually WithNATS.
	Extensions []runtime.Extension

	Run    func(ctx context.Context, rt *runtime.Runtime, out *Output) error
	Client func(ctx context.Context, c *lattice.Client, out *Output) error
}

func (cfg CommandConfig) validate() error {
	switch {
	case cfg.Name == "":
		return errors.New("command name required")
	case cfg.Viper == nil:
		return errors.New("viper required")
	case cfg.Run == nil && cfg.Client == nil:
		return errors.New("run function required")
	case cfg.Run != nil && cfg.Client != nil:
		return errors.New("set only one of Run and Client")
	}
	return nil
}

// RunCommand loads the host key, builds the runtime with cfg's extensions
// and hands the result to cfg.Run or, through a lattice client, cfg.Client.
// The runtime is closed when the command returns.
func RunCommand(cfg CommandConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	signer, err := LoadSigner(cfg.Viper)
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}

	builder := NewBuilder(cfg.Name, cfg.Viper).Signer(signer)
	for _, ext := range cfg.Extensions {
		builder = builder.Use(ext)
	}
	rt, err := builder.Build()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() { _ = rt.Close() }()

	ctx := rt.Context()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	out := NewOutputFromViper(cfg.Viper)

	if cfg.Run != nil {
		return cfg.Run(ctx, rt, out)
	}
	c, err := Lattice(rt, cfg.Viper)
	if err != nil {
		return err
	}
	return cfg.Client(ctx, c, out)
}
