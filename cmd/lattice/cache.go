package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cache"
	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/pkg/runtime"
	"github.com/gezibash/wasmbus/pkg/transport"
)

func newCacheCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Claims and reference map cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Answer claims and reference map queries until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:       "cache",
				Viper:      v,
				Extensions: runtimeFactory(v),
				Run: func(ctx context.Context, rt *runtime.Runtime, out *cli.Output) error {
					return serveCache(ctx, rt, v, out)
				},
			})
		},
	})
	return cmd
}

func serveCache(ctx context.Context, rt *runtime.Runtime, v *viper.Viper, out *cli.Output) error {
	prefix := config.BaseConfig{Prefix: v.GetString("prefix")}.ResolvedPrefix()
	c := cache.New(transport.From(rt), cache.Config{Prefix: prefix, Log: rt.Log()})
	if err := c.Start(); err != nil {
		return fmt.Errorf("start cache: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := out.Result("cache", "cache serving").With("prefix", prefix).Render(); err != nil {
		return err
	}
	<-ctx.Done()

	return out.Result("cache", "cache stopped").
		With("claims", len(c.Claims())).
		With("reference maps", len(c.ReferenceMaps())).
		Render()
}
