package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/internal/names"
)

func newNamesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "names",
		Short: "Local @names for actor and provider keys",
		Long: `Manage local names for entity keys.

A name can stand in for a key in any --actor or --provider flag:
  lattice names add echo MB2Z...
  lattice invoke --actor @echo ...`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME KEY",
			Short: "Name an actor or provider key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openNames(v)
				if err != nil {
					return err
				}
				if err := store.Add(args[0], args[1]); err != nil {
					return err
				}
				return cli.NewOutputFromViper(v).Result("names-add", "name saved").
					With("name", "@"+strings.TrimPrefix(strings.ToLower(args[0]), "@")).
					With("key", args[1]).
					Render()
			},
		},
		&cobra.Command{
			Use:   "rm NAME",
			Short: "Forget a name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openNames(v)
				if err != nil {
					return err
				}
				if err := store.Remove(args[0]); err != nil {
					return err
				}
				return cli.NewOutputFromViper(v).Result("names-rm", "name removed").With("name", args[0]).Render()
			},
		},
		&cobra.Command{
			Use:   "ls",
			Short: "List names",
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := openNames(v)
				if err != nil {
					return err
				}
				t := cli.NewOutputFromViper(v).Table("names", "Name", "Kind", "Key")
				for _, e := range store.List() {
					t.AddRow("@"+e.Name, e.Kind(), e.Key)
				}
				return t.Render()
			},
		},
	)
	return cmd
}

func openNames(v *viper.Viper) (*names.Store, error) {
	return names.Open(config.BaseConfig{DataDir: v.GetString("data_dir")}.ResolvedDataDir())
}

// resolveNames replaces @name arguments with the keys they stand for.
func resolveNames(v *viper.Viper, args ...*string) error {
	var store *names.Store
	for _, arg := range args {
		if !strings.HasPrefix(*arg, "@") {
			continue
		}
		if store == nil {
			s, err := openNames(v)
			if err != nil {
				return err
			}
			store = s
		}
		key, err := store.Resolve(*arg)
		if err != nil {
			return err
		}
		*arg = key
	}
	return nil
}
