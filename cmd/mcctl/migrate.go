package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/mobilecoder/internal/project"
)

// newMigrateCmd instantiates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <snapshot.json|->",
		Short: "Upgrade a files snapshot to the current schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := project.MigrateFiles(raw)
			if err != nil {
				return fmt.Errorf("migrate snapshot: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}
