package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/nhle/carfeed/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification API server",
		Long: `Run the HTTP API that stores notifications, serves listings and
publishes push events.

Notifications are kept in the SQLite database at store.path. Push events go
through the configured transport (redis for multi-instance delivery).

Example:
  carfeed serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (defaults to server.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := opts.Config
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if cfg.Auth.JWTSecret == "" {
		return NewExitError(ExitCommandError, "auth.jwt_secret is required (or set CARFEED_AUTH_JWT_SECRET)")
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	// The server is the remote store, so it always persists locally.
	cfg.Store.Mode = storeModeSQLite
	st, closeStore, err := openStore(cfg, nil, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	endpoints, err := openPush(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open push transport", err)
	}
	defer endpoints.close()

	srv, err := server.New(st, endpoints.publisher, cfg.Auth.JWTSecret, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	if err := srv.Run(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
