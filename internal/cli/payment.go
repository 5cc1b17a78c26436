package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/market"
)

// NewRewardCommand creates the reward command group.
func NewRewardCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Top up or pay out task rewards",
	}
	cmd.AddCommand(newRewardCommand(opts, "add", "Move funds from your wallet into a task's reward",
		func(ctx context.Context, m *market.Market, me domain.User, id string, amount decimal.Decimal) (domain.Task, error) {
			return m.Ledger.AddReward(ctx, id, me.ID, amount)
		}))
	cmd.AddCommand(newRewardCommand(opts, "pay", "Pay part of a task's reward to its occupier",
		func(ctx context.Context, m *market.Market, me domain.User, id string, amount decimal.Decimal) (domain.Task, error) {
			return m.Ledger.PayReward(ctx, id, me.ID, amount)
		}))
	return cmd
}

type rewardFunc func(ctx context.Context, m *market.Market, me domain.User, id string, amount decimal.Decimal) (domain.Task, error)

func newRewardCommand(opts *RootOptions, use, short string, fn rewardFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				amount, err := parseAmount(args[1])
				if err != nil {
					return out.Fail(err)
				}
				t, err := fn(ctx, m, me, args[0], amount)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "%s: reward %s, paid %s\n", t.ID, t.Reward, t.RewardPaid)
				})
			})
		},
	}
}

// NewPaymentCommand creates the payment command group.
func NewPaymentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Confirm payments and review your accounts",
	}
	cmd.AddCommand(newPaymentConfirmCommand(opts))
	cmd.AddCommand(newPaymentHistoryCommand(opts))
	cmd.AddCommand(newPaymentSummaryCommand(opts))
	return cmd
}

func newPaymentConfirmCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <task-id>",
		Short: "Confirm a task's reward as fully paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				t, err := m.Ledger.ConfirmPayment(ctx, args[0], me.ID)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s of %s confirmed\n", t.ID, t.RewardPaid, t.Reward)
				})
			})
		},
	}
}

func newPaymentHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List payments you sent and received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				h := m.Ledger.History(me.ID)
				return out.Render(h, func(w io.Writer) {
					fmt.Fprintln(w, "Sent:")
					printTransactions(w, h.Sent, func(t domain.Transaction) domain.Party { return t.To })
					fmt.Fprintln(w, "\nReceived:")
					printTransactions(w, h.Received, func(t domain.Transaction) domain.Party { return t.From })
				})
			})
		},
	}
}

func newPaymentSummaryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals paid, earned and your balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				s, err := m.Ledger.Summary(me.ID)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(s, func(w io.Writer) {
					fmt.Fprintf(w, "Total paid:   %s\n", s.TotalPaid)
					fmt.Fprintf(w, "Total earned: %s\n", s.TotalEarned)
					fmt.Fprintf(w, "To pay:       %s\n", s.PendingToPay)
					fmt.Fprintf(w, "To receive:   %s\n", s.PendingToReceive)
					fmt.Fprintf(w, "Balance:      %s\n", s.Balance)
				})
			})
		},
	}
}

func printTransactions(w io.Writer, list []domain.Transaction, counterparty func(domain.Transaction) domain.Party) {
	if len(list) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  DATE\tTASK\tWITH\tAMOUNT\tSTATUS")
	for _, t := range list {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			t.CreatedAt.Format(time.DateOnly), t.TaskTitle, counterparty(t).Name, t.Amount, t.Status)
	}
	tw.Flush()
}
