package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/config"
	"github.com/roach88/taskmarket/internal/market"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Database   string
	Origin     string

	// Market is the base for every market the commands open. Origin and
	// PollInterval come from the configuration when unset (for testing).
	Market market.Options

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the taskmarket CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskmarket",
		Short: "taskmarket - a task marketplace",
		Long: `A marketplace where users publish paid tasks, claim each other's tasks,
and settle rewards between wallets.

Every command works against one SQLite file. Several processes may share it;
each writes under its own origin and sees the others' changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), cfg, opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default "+config.DefaultFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Origin, "origin", "", "origin name for this process's writes (overrides config)")

	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewTaskCommand(opts))
	cmd.AddCommand(NewRewardCommand(opts))
	cmd.AddCommand(NewPaymentCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config loads the configuration once, applying flag overrides.
func (o *RootOptions) Config() (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Origin != "" {
		cfg.Origin = o.Origin
	}
	o.cfg = &cfg
	return cfg, nil
}

// openMarket opens the configured database. The caller closes it.
func (o *RootOptions) openMarket(ctx context.Context) (*market.Market, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}

	mo := o.Market
	if mo.Origin == "" {
		mo.Origin = cfg.ResolvedOrigin()
	}
	if mo.PollInterval == 0 {
		mo.PollInterval = cfg.PollInterval
	}

	slog.Debug("opening database", "path", cfg.Database, "origin", mo.Origin)
	m, err := market.Open(ctx, cfg.Database, mo)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return m, nil
}

// withMarket runs fn against an open market and closes it afterwards.
func (o *RootOptions) withMarket(cmd *cobra.Command, fn func(ctx context.Context, m *market.Market) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := o.openMarket(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(ctx, m)
}

// setupLogging installs a slog text handler on w. --verbose forces debug.
func setupLogging(w io.Writer, cfg config.Config, verbose bool) {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
