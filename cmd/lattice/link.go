package main

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cel"
	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

func newLinkCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage link definitions",
	}
	cmd.AddCommand(newLinkPutCmd(v), newLinkDelCmd(v), newLinkGetCmd(v))
	return cmd
}

type linkFlags struct {
	actor, provider, linkName, contract string
}

func (l *linkFlags) bind(cmd *cobra.Command, withActor bool) {
	f := cmd.Flags()
	if withActor {
		f.StringVar(&l.actor, "actor", "", "actor public key")
		_ = cmd.MarkFlagRequired("actor")
	}
	f.StringVar(&l.provider, "provider", "", "provider public key")
	f.StringVar(&l.linkName, "link-name", wasmbus.DefaultLinkName, "link name")
	f.StringVar(&l.contract, "contract", "", "capability contract id")
	_ = cmd.MarkFlagRequired("provider")
}

func (l *linkFlags) resolve(v *viper.Viper) error {
	return resolveNames(v, &l.actor, &l.provider)
}

func newLinkPutCmd(v *viper.Viper) *cobra.Command {
	var (
		l      linkFlags
		values map[string]string
	)
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Link an actor to a provider",
		Example: `  lattice link put --actor MB2Z... --provider VAHN... \
      --contract wasmcloud:keyvalue --value URL=redis://127.0.0.1:6379/`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := l.resolve(v); err != nil {
				return err
			}
			ld := wasmbus.LinkDefinition{
				ActorID:    l.actor,
				ProviderID: l.provider,
				LinkName:   l.linkName,
				ContractID: l.contract,
				Values:     values,
			}
			if ld.Values == nil {
				ld.Values = map[string]string{}
			}
			return withLattice(v, "link-put", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				if err := c.PutLinkDefinition(ctx, ld); err != nil {
					return err
				}
				return out.Result("link-put", "link definition published").
					With("actor", ld.ActorID).
					With("provider", ld.ProviderID).
					With("link name", ld.LinkName).
					Render()
			})
		},
	}
	l.bind(cmd, true)
	cmd.Flags().StringToStringVar(&values, "value", nil, "link value as key=value (repeatable)")
	return cmd
}

func newLinkDelCmd(v *viper.Viper) *cobra.Command {
	var l linkFlags
	cmd := &cobra.Command{
		Use:   "del",
		Short: "Remove a link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := l.resolve(v); err != nil {
				return err
			}
			return withLattice(v, "link-del", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				if err := c.DelLinkDefinition(ctx, l.actor, l.provider, l.linkName, l.contract); err != nil {
					return err
				}
				return out.Result("link-del", "link removal published").
					With("actor", l.actor).
					With("provider", l.provider).
					With("link name", l.linkName).
					Render()
			})
		},
	}
	l.bind(cmd, true)
	return cmd
}

func newLinkGetCmd(v *viper.Viper) *cobra.Command {
	var (
		l      linkFlags
		filter string
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "List the links a provider serves",
		Example: `  lattice link get --provider VAHN...
  lattice link get --provider VAHN... --filter 'values.URL.startsWith("redis://")'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := l.resolve(v); err != nil {
				return err
			}
			f, err := compileFilter(filter, cel.LinkKeys)
			if err != nil {
				return err
			}
			return withLattice(v, "link-get", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				links, err := c.GetLinkDefinitions(ctx, l.provider, l.linkName)
				if err != nil {
					return err
				}
				return linkTable(out, cel.Select(f, links, cel.LinkAttrs)).Render()
			})
		},
	}
	l.bind(cmd, false)
	cmd.Flags().StringVar(&filter, "filter", "", "CEL expression over actor, provider, link_name, contract, values")
	return cmd
}

func linkTable(out *cli.Output, links []wasmbus.LinkDefinition) *cli.Table {
	t := out.Table("link-definitions", "Actor", "Provider", "Link Name", "Contract", "Values")
	for _, ld := range links {
		t.AddRow(ld.ActorID, ld.ProviderID, ld.LinkName, ld.ContractID, formatValues(ld.Values))
	}
	return t
}

func formatValues(values map[string]string) string {
	pairs := make([]string, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
