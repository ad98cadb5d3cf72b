package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/mobilecoder/internal/store"
)

// newPruneCmd instantiates and returns the prune command.
func newPruneCmd() *cobra.Command {
	var opts struct {
		DBPath string
		TTL    time.Duration
	}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete workspaces idle for longer than --ttl",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.TTL <= 0 {
				return errors.New("--ttl must be positive")
			}
			repo, err := store.NewSQLite(opts.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			deleted, err := repo.DeleteIdleUsers(cmd.Context(), opts.TTL)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d idle workspaces\n", deleted)
			return nil
		},
	}

	defaultDB := os.Getenv("DB_PATH")
	if defaultDB == "" {
		defaultDB = "./data/mobilecoder.db"
	}
	cmd.Flags().StringVar(&opts.DBPath, "db", defaultDB, "SQLite database path")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 30*24*time.Hour, "Idle time after which a workspace is deleted")
	return cmd
}
