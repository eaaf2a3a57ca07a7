package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

func providerFlags(cmd *cobra.Command, provider, linkName *string) {
	cmd.Flags().StringVar(provider, "provider", "", "provider public key")
	cmd.Flags().StringVar(linkName, "link-name", wasmbus.DefaultLinkName, "link name")
	_ = cmd.MarkFlagRequired("provider")
}

func newHealthCmd(v *viper.Viper) *cobra.Command {
	var provider, linkName string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a provider link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolveNames(v, &provider); err != nil {
				return err
			}
			return withLattice(v, "health", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				hr, err := c.Health(ctx, provider, linkName)
				if err != nil {
					return err
				}
				kv := out.KV("health").
					Set("Provider", provider).
					Set("Link Name", linkName).
					Set("Healthy", hr.Healthy)
				if hr.Message != "" {
					kv.Set("Message", hr.Message)
				}
				if err := kv.Render(); err != nil {
					return err
				}
				if !hr.Healthy {
					return errReported
				}
				return nil
			})
		},
	}
	providerFlags(cmd, &provider, &linkName)
	return cmd
}

func newShutdownCmd(v *viper.Viper) *cobra.Command {
	var provider, linkName string
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask every instance of a provider link to stop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolveNames(v, &provider); err != nil {
				return err
			}
			return withLattice(v, "shutdown", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				if err := c.Shutdown(ctx, provider, linkName); err != nil {
					return err
				}
				return out.Result("shutdown", "shutdown published").
					With("provider", provider).
					With("link name", linkName).
					Render()
			})
		},
	}
	providerFlags(cmd, &provider, &linkName)
	return cmd
}
