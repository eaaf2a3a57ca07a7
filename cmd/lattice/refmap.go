package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cel"
	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

func newRefMapCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refmap",
		Short: "Publish and query reference maps",
	}
	cmd.AddCommand(newRefMapGetCmd(v), newRefMapPutCmd(v))
	return cmd
}

func newRefMapGetCmd(v *viper.Viper) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "List the reference maps known to the lattice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := compileFilter(filter, cel.RefMapKeys)
			if err != nil {
				return err
			}
			return withLattice(v, "refmap-get", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				maps, err := c.GetReferenceMaps(ctx)
				if err != nil {
					return err
				}
				return refMapTable(out, cel.Select(f, maps, cel.RefMapAttrs)).Render()
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "CEL expression over kind, reference, target")
	return cmd
}

type refMapFlags struct {
	oci, alias                          string
	actor, provider, contract, linkName string
}

func (f refMapFlags) reference() (wasmbus.Reference, error) {
	switch {
	case f.oci != "" && f.alias != "":
		return nil, errors.New("use one of --oci or --alias")
	case f.oci != "":
		return wasmbus.OCIReference(f.oci), nil
	case f.alias != "":
		return wasmbus.CallAlias(f.alias), nil
	default:
		return nil, errors.New("one of --oci or --alias is required")
	}
}

func (f refMapFlags) target() (wasmbus.Entity, error) {
	switch {
	case f.actor != "" && f.provider != "":
		return nil, errors.New("use one of --actor or --provider")
	case f.actor != "":
		if !wasmbus.IsActorKey(f.actor) {
			return nil, errors.New("--actor is not an actor key")
		}
		return wasmbus.Actor{PublicKey: f.actor}, nil
	case f.provider != "":
		return wasmbus.Capability{ID: f.provider, ContractID: f.contract, LinkName: f.linkName}, nil
	default:
		return nil, errors.New("one of --actor or --provider is required")
	}
}

func newRefMapPutCmd(v *viper.Viper) *cobra.Command {
	var f refMapFlags
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Publish an alias for an actor or provider",
		Example: `  lattice refmap put --oci wasmcloud.azurecr.io/echo:0.2.0 --actor MB2Z...
  lattice refmap put --alias kv --provider VAHN... --contract wasmcloud:keyvalue`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolveNames(v, &f.actor, &f.provider); err != nil {
				return err
			}
			ref, err := f.reference()
			if err != nil {
				return err
			}
			target, err := f.target()
			if err != nil {
				return err
			}
			return withLattice(v, "refmap-put", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				if err := c.PutReferenceMap(ctx, ref, target); err != nil {
					return err
				}
				return out.Result("refmap-put", "reference map published").
					With("reference", wasmbus.ReferenceKey(ref)).
					With("target", target.URL()).
					Render()
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.oci, "oci", "", "OCI image reference")
	fl.StringVar(&f.alias, "alias", "", "call alias")
	fl.StringVar(&f.actor, "actor", "", "target actor key")
	fl.StringVar(&f.provider, "provider", "", "target provider key")
	fl.StringVar(&f.contract, "contract", "", "target provider contract id")
	fl.StringVar(&f.linkName, "link-name", wasmbus.DefaultLinkName, "target provider link name")
	return cmd
}

func refMapTable(out *cli.Output, maps []wasmbus.ReferenceMap) *cli.Table {
	t := out.Table("reference-maps", "Kind", "Reference", "Target")
	for _, m := range maps {
		target := ""
		if m.Target != nil {
			target = m.Target.URL()
		}
		t.AddRow(m.Kind.Kind(), m.Kind.Value(), target)
	}
	return t
}
