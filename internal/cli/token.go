package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/carfeed/internal/auth"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID string
	TTL    time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwt_secret",
		Long: `Issue a bearer token for a user, signed with the configured secret.
Useful for local development against 'carfeed serve'.

Example:
  carfeed token --user u-42 --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.Config.Auth.JWTSecret
			if secret == "" {
				return NewExitError(ExitCommandError, "auth.jwt_secret is not configured")
			}
			tok, err := auth.GenerateToken(secret, opts.UserID, opts.TTL)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to issue token", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", auth.DefaultTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
