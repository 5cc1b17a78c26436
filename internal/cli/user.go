package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/market"
	"github.com/roach88/taskmarket/internal/users"
)

// NewUserCommand creates the user command group.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts and the login session",
	}
	cmd.AddCommand(newSignupCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newWhoamiCommand(opts))
	cmd.AddCommand(newDepositCommand(opts))
	cmd.AddCommand(newProfileCommand(opts))
	return cmd
}

func newSignupCommand(opts *RootOptions) *cobra.Command {
	var in struct {
		name, email, password, balance string
	}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Example: `  taskmarket user signup --name Alice --email alice@example.com --password secret123
  taskmarket user signup --name Bob --email bob@example.com --password secret123 --balance 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			balance, err := parseAmount(in.balance)
			if err != nil {
				return out.Fail(err)
			}
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				u, err := m.Users.Signup(ctx, users.SignupInput{
					Name:           in.name,
					Email:          in.email,
					Password:       in.password,
					InitialBalance: balance,
				})
				if err != nil {
					return out.Fail(err)
				}
				if _, err := m.Users.Login(ctx, u.ID); err != nil {
					return out.Fail(err)
				}
				return out.Render(u.Public(), func(w io.Writer) {
					fmt.Fprintf(w, "Signed up and logged in as %s (%s)\n", u.Name, u.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&in.name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&in.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&in.password, "password", "", "password (required)")
	cmd.Flags().StringVar(&in.balance, "balance", "0", "initial wallet balance")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				u, err := m.Users.Authenticate(email, password)
				if err != nil {
					return out.Fail(err)
				}
				if _, err := m.Users.Login(ctx, u.ID); err != nil {
					return out.Fail(err)
				}
				return out.Render(u.Public(), func(w io.Writer) {
					fmt.Fprintf(w, "Logged in as %s (%s)\n", u.Name, u.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the login session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				if err := m.Users.Logout(ctx); err != nil {
					return out.Fail(err)
				}
				return out.Render(map[string]bool{"logged_out": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Logged out")
				})
			})
		},
	}
}

func newWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				u, err := m.Users.Current(ctx)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(u.Public(), func(w io.Writer) { printUser(w, u) })
			})
		},
	}
}

func newDepositCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "deposit <amount>",
		Short:   "Add funds to your wallet",
		Example: "  taskmarket user deposit 25.50",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			amount, err := parseAmount(args[0])
			if err != nil {
				return out.Fail(err)
			}
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				me, err := m.Users.Current(ctx)
				if err != nil {
					return out.Fail(err)
				}
				u, err := m.Users.Deposit(ctx, me.ID, amount)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(u.Public(), func(w io.Writer) {
					fmt.Fprintf(w, "Wallet balance: %s\n", u.WalletBalance)
				})
			})
		},
	}
}

func newProfileCommand(opts *RootOptions) *cobra.Command {
	var name, wallet string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				me, err := m.Users.Current(ctx)
				if err != nil {
					return out.Fail(err)
				}
				var p users.ProfilePatch
				if cmd.Flags().Changed("name") {
					p.Name = &name
				}
				if cmd.Flags().Changed("wallet-address") {
					p.WalletAddress = &wallet
				}
				if p.Name != nil || p.WalletAddress != nil {
					if me, err = m.Users.UpdateProfile(ctx, me.ID, p); err != nil {
						return out.Fail(err)
					}
				}
				return out.Render(me.Public(), func(w io.Writer) { printUser(w, me) })
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&wallet, "wallet-address", "", "new payout wallet address")
	return cmd
}

func printUser(w io.Writer, u domain.User) {
	fmt.Fprintf(w, "%s <%s>\n", u.Name, u.Email)
	fmt.Fprintf(w, "  id:      %s\n", u.ID)
	fmt.Fprintf(w, "  balance: %s\n", u.WalletBalance)
	if u.WalletAddress != "" {
		fmt.Fprintf(w, "  wallet:  %s\n", u.WalletAddress)
	}
}

// parseAmount parses a decimal amount argument.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", users.ErrInvalidAmount, s)
	}
	return d, nil
}
