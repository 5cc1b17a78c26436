package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/market"
)

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every stored collection as JSON",
		Long: `Print every key of the database as one JSON object. Password hashes are
included, so treat the output as sensitive.

Example:
  taskmarket export
  taskmarket export -o backup.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				dump, err := m.Export(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "export failed", err)
				}
				data, err := json.MarshalIndent(dump, "", "  ")
				if err != nil {
					return WrapExitError(ExitFailure, "export failed", err)
				}
				data = append(data, '\n')

				if output == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return WrapExitError(ExitCommandError, "failed to write export", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d keys to %s\n", len(dump), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
