package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/market"
	"github.com/roach88/taskmarket/internal/store"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow changes made by other processes",
		Long: `Poll the database for writes made under other origins and print each
one as it arrives. Writes made by this process are not shown.

Example:
  taskmarket watch --origin tab-2
  taskmarket watch --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			m, err := opts.openMarket(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					slog.Error("error closing database", "error", closeErr)
				}
			}()

			return runWatch(ctx, cmd, opts, m)
		},
	}
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *RootOptions, m *market.Market) error {
	w := cmd.OutOrStdout()
	if opts.Format != "json" {
		fmt.Fprintf(w, "Watching as %s. Press Ctrl-C to stop.\n", m.Origin())
	}

	enc := json.NewEncoder(w)
	err := m.Watch(ctx, func(c store.Change) {
		if opts.Format == "json" {
			_ = enc.Encode(c)
			return
		}
		fmt.Fprintf(w, "#%d %s %s by %s\n", c.Seq, c.Op, c.Key, c.Origin)
	})
	if err != nil {
		return WrapExitError(ExitFailure, "watch failed", err)
	}

	slog.Info("watch stopped")
	return nil
}
