package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/preview"
	"github.com/ashureev/mobilecoder/internal/project"
)

// newComposeCmd instantiates and returns the compose command.
func newComposeCmd() *cobra.Command {
	var opts struct {
		Active  string
		DataURL bool
	}

	cmd := &cobra.Command{
		Use:   "compose <snapshot.json|->",
		Short: "Print the composed preview of a files snapshot",
		Long:  "Compose the preview document for a files snapshot (legacy array or versioned envelope) exactly as the server would serve it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			nodes, _, err := project.DecodeFiles(raw)
			if err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}

			doc := preview.Compose(nodes, activeID(nodes, opts.Active))
			if doc.IsPlaceholder() {
				fmt.Fprintln(cmd.ErrOrStderr(), "no HTML entry found, printing placeholder")
			}
			if opts.DataURL {
				fmt.Fprintln(cmd.OutOrStdout(), doc.DataURL())
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), doc.HTML)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Active, "active", "a", "", "Active node id or name")
	cmd.Flags().BoolVar(&opts.DataURL, "data-url", false, "Print a base64 data URL instead of HTML")
	return cmd
}

// activeID resolves ref against node ids first, then names.
func activeID(nodes []domain.FileNode, ref string) string {
	if ref == "" {
		return ""
	}
	for _, n := range nodes {
		if n.ID == ref {
			return n.ID
		}
	}
	for _, n := range nodes {
		if n.Name == ref {
			return n.ID
		}
	}
	return ""
}
