package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/web"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Long: `Serve the marketplace over HTTP until interrupted.

Tokens are signed with server.jwt_secret, which must be set in the config
file or through TASKMARKET_SERVER_JWT_SECRET.

Example:
  TASKMARKET_SERVER_JWT_SECRET=change-me taskmarket serve --listen :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	serverCfg := cfg.Server
	if opts.Listen != "" {
		serverCfg.Listen = opts.Listen
	}

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

	srv, err := web.New(m, serverCfg)
	if err != nil {
		if errors.Is(err, web.ErrNoSecret) {
			return WrapExitError(ExitCommandError, "cannot start server", err)
		}
		return err
	}

	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "server failed", err)
	}
	return nil
}
