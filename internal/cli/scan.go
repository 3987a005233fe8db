package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewScanCommand creates the scan command: process one payload from argv or
// stdin and print the resolution.
func NewScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [payload|-]",
		Short: "Process one scanned payload",
		Long: `Process a single scanned payload: validate it, attempt immediate
submission, and durably queue it when the endpoint cannot be reached.
Pass "-" to read the payload from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := args[0]
			if raw == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				raw = string(data)
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			result := a.orchestrator.Process(context.Background(), raw)
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
}
