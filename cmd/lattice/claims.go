package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cel"
	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/pkg/lattice"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

func newClaimsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Publish and query actor claims",
	}
	cmd.AddCommand(newClaimsGetCmd(v), newClaimsPutCmd(v))
	return cmd
}

func newClaimsGetCmd(v *viper.Viper) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:     "get",
		Short:   "List the claims known to the lattice",
		Example: `  lattice claims get --filter '"wasmcloud:keyvalue" in caps'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := compileFilter(filter, cel.ClaimsKeys)
			if err != nil {
				return err
			}
			return withLattice(v, "claims-get", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				claims, err := c.GetClaims(ctx)
				if err != nil {
					return err
				}
				return claimsTable(out, cel.Select(f, claims, cel.ClaimsAttrs)).Render()
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "CEL expression over subject, issuer, name, caps, tags, rev, version")
	return cmd
}

func newClaimsPutCmd(v *viper.Viper) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Publish actor claims",
		Example: `  lattice claims put --json '{"sub":"MB2Z...","iss":"AC...","name":"echo","caps":["wasmcloud:keyvalue"],"rev":1}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var claims wasmbus.ActorClaims
			if err := json.Unmarshal([]byte(raw), &claims); err != nil {
				return fmt.Errorf("parse claims: %w", err)
			}
			if !wasmbus.IsActorKey(claims.Subject) {
				return fmt.Errorf("claims subject %q is not an actor key", claims.Subject)
			}
			return withLattice(v, "claims-put", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				if err := c.PutClaims(ctx, claims); err != nil {
					return err
				}
				return out.Result("claims-put", "claims published").
					With("subject", claims.Subject).
					With("revision", claims.Revision).
					Render()
			})
		},
	}
	cmd.Flags().StringVar(&raw, "json", "", "claims as JSON")
	_ = cmd.MarkFlagRequired("json")
	return cmd
}

func claimsTable(out *cli.Output, claims []wasmbus.ActorClaims) *cli.Table {
	t := out.Table("actor-claims", "Subject", "Name", "Issuer", "Revision", "Capabilities")
	for _, cl := range claims {
		t.AddRow(cl.Subject, cl.Name, cl.Issuer, strconv.Itoa(int(cl.Revision)), strings.Join(cl.Capabilities, ","))
	}
	return t
}
