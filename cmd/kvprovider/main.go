package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Backing stores selectable by link URL scheme.
	_ "github.com/gezibash/wasmbus/internal/kvstore/badger"
	_ "github.com/gezibash/wasmbus/internal/kvstore/memory"
	_ "github.com/gezibash/wasmbus/internal/kvstore/redis"
	_ "github.com/gezibash/wasmbus/internal/kvstore/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "kvprovider",
		Short: "wasmcloud:keyvalue capability provider",
		Long: `A key-value capability provider for a wasmbus lattice.

Each linked actor gets its own backing store, chosen by the URL link value:
  redis://host:6379/0      Redis
  badger:///path/to/dir    Badger (badger://memory for in-memory)
  sqlite:///path/kv.db     SQLite (sqlite://memory for in-memory)
  mem://                   process memory`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newStartCmd(), newOpsCmd(), newVersionCmd())
	return rootCmd.Execute()
}

var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}
