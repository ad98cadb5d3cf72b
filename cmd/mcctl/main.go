// mcctl inspects and maintains MobileCoder workspaces offline.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mcctl",
		Short:         "A CLI for MobileCoder workspace operations",
		Version:       "1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newComposeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newPruneCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mcctl:", err)
		os.Exit(1)
	}
}

// readInput reads a snapshot file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}
