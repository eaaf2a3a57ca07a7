package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
)

func newKeysCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage host keys",
		Long: `Manage the host keys invocations are signed with.

Keys live in the keyring under the data directory. Commands sign with
--seed, --seed-file, --key (alias or public key), the default key, or a
fresh ephemeral key, in that order.`,
	}
	cmd.AddCommand(
		newKeysGenerateCmd(v),
		newKeysImportCmd(v),
		newKeysListCmd(v),
		newKeysDefaultCmd(v),
		newKeysDeleteCmd(v),
	)
	return cmd
}

func newKeysGenerateCmd(v *viper.Viper) *cobra.Command {
	var (
		outFile    string
		alias      string
		setDefault bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a host key",
		Long: `Generate a host key for signing invocations.

The public key ("N...") goes into a provider's VALID_ISSUERS. The key is
stored in the keyring, or with --out written to a seed file for --seed-file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cli.NewOutputFromViper(v)
			if outFile != "" {
				kp, err := nkey.Generate()
				if err != nil {
					return err
				}
				seed, err := kp.Seed()
				if err != nil {
					return err
				}
				if err := os.WriteFile(outFile, []byte(seed+"\n"), 0o600); err != nil {
					return fmt.Errorf("write seed: %w", err)
				}
				return out.KV("host-key").
					Set("Public Key", kp.Encoded()).
					Set("Seed File", outFile).
					Render()
			}

			if setDefault && alias == "" {
				return fmt.Errorf("--default needs --alias")
			}
			kr := cli.Keyring(v)
			key, err := kr.Generate(context.Background(), alias)
			if err != nil {
				return err
			}
			if setDefault {
				if err := kr.SetDefault(alias); err != nil {
					return err
				}
			}
			kv := out.KV("host-key").Set("Public Key", key.PublicKey)
			if alias != "" {
				kv.Set("Alias", alias)
			}
			return kv.Set("Default", setDefault).Render()
		},
	}
	f := cmd.Flags()
	f.StringVar(&outFile, "out", "", "write the seed to this file instead of the keyring")
	f.StringVar(&alias, "alias", "", "keyring alias for the new key")
	f.BoolVar(&setDefault, "default", false, "make the new key the default")
	return cmd
}

func newKeysImportCmd(v *viper.Viper) *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "import SEED_FILE",
		Short: "Add an existing seed to the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed: %w", err)
			}
			key, err := cli.Keyring(v).Import(context.Background(), string(data), alias)
			if err != nil {
				return err
			}
			return cli.NewOutputFromViper(v).Result("keys-import", "key imported").
				With("public key", key.PublicKey).
				With("alias", alias).
				Render()
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "keyring alias")
	return cmd
}

func newKeysListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List keyring keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := cli.Keyring(v).List(context.Background())
			if err != nil {
				return err
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })

			t := cli.NewOutputFromViper(v).Table("host-keys", "Public Key", "Aliases", "Default", "Created")
			for _, info := range infos {
				aliases := append([]string(nil), info.Aliases...)
				sort.Strings(aliases)
				def := ""
				if info.IsDefault {
					def = "*"
				}
				t.AddRow(info.PublicKey, strings.Join(aliases, ","), def, info.CreatedAt.Format(time.RFC3339))
			}
			return t.Render()
		},
	}
}

func newKeysDefaultCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "default ALIAS",
		Short: "Sign with ALIAS unless a command names another key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.Keyring(v).SetDefault(args[0]); err != nil {
				return err
			}
			return cli.NewOutputFromViper(v).Result("keys-default", "default key set").With("alias", args[0]).Render()
		},
	}
}

func newKeysDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a key by alias or public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.Keyring(v).Delete(context.Background(), args[0]); err != nil {
				return err
			}
			return cli.NewOutputFromViper(v).Result("keys-rm", "key deleted").With("key", args[0]).Render()
		},
	}
}
