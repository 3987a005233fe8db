package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"attendsync/internal/exporter"
)

// NewExportCommand creates the export command: write pending events to a
// shareable JSON artifact and mark them transmitted.
func NewExportCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export pending events to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			exp := a.exporter
			if dir != "" {
				exp = exporter.New(a.store, dir)
			}

			path, err := exp.Export(context.Background())
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to export")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (defaults to EXPORT_DIR)")
	return cmd
}
