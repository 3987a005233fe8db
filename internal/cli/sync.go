package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command: one reconciliation pass.
func NewSyncCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued events against the endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			sum, err := a.reconciler.Run(context.Background(), force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d synchronized=%d failed=%d\n",
				sum.Attempted, sum.Synchronized, sum.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false,
		"bypass the connectivity gate and per-event backoff")
	return cmd
}
