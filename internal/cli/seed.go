package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/market"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load users and tasks from a YAML fixture",
		Long: `Create the users and tasks described by a fixture file. Users whose email
is already registered are skipped, so a fixture can be applied repeatedly.

Example fixture:
  users:
    - name: Test User
      email: test@example.com
      password: password123
      balance: "100"
  tasks:
    - title: Write docs
      publisher: test@example.com
      reward: "25"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			fixture, err := market.LoadFixture(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load fixture", err)
			}
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				res, err := m.Seed(ctx, fixture)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Seeded %d users (%d already existed) and %d tasks\n",
						res.Users, res.SkippedUsers, res.Tasks)
				})
			})
		},
	}
}
