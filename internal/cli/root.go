// Package cli wires the agent's commands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the attendsync agent.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Offline-first attendance capture and reconciliation agent",
		Long: `attendsync captures attendance scan events, submits them to the
institutional endpoint, durably queues them when the network is down, and
replays the queue once connectivity returns.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewSyncCommand())
	cmd.AddCommand(NewExportCommand())

	return cmd
}
