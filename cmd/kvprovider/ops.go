package main

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/internal/keyvalue"
	"github.com/gezibash/wasmbus/pkg/provider"
)

func newOpsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List the operations this provider answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listOperations(cli.NewOutput(cli.ParseFormat(format), cmd.OutOrStdout()))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format (text, json, yaml, markdown)")
	return cmd
}

// listOperations renders the operations bound by keyvalue.Register, sorted.
// No store is opened.
func listOperations(out *cli.Output) error {
	d := provider.NewDispatcher(provider.NewRegistry(keyvalue.Opener(nil)), provider.DispatcherConfig{})
	keyvalue.Register(d)
	ops := d.Operations()
	slices.Sort(ops)
	return out.StringList(keyvalue.ContractID + "/operations").Add(ops...).Render()
}
