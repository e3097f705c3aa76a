package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/carfeed/internal/auth"
	"github.com/nhle/carfeed/internal/push"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	UserID string
	Type   string
	Title  string
	Body   string
	Meta   map[string]string
	Token  string
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Send a push event to a user",
		Long: `Publish one push envelope to a user's channel.

With the redis transport the envelope is published directly; otherwise it is
posted to the API server's /events endpoint.

Example:
  carfeed publish --user u-42 --type message.received \
    --title "New message" --body "Is the Civic still available?" \
    --meta messageId=m-1001 --meta conversationId=c-7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "recipient user id (required)")
	cmd.Flags().StringVar(&opts.Type, "type", push.TypeMessageReceived, "envelope type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "notification title")
	cmd.Flags().StringVar(&opts.Body, "body", "", "notification body")
	cmd.Flags().StringToStringVar(&opts.Meta, "meta", nil, "meta key=value pairs")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token for the API (minted from auth.jwt_secret when empty)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPublish(cmd *cobra.Command, opts *PublishOptions) error {
	cfg := opts.Config
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	if !push.KnownType(opts.Type) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown envelope type %q", opts.Type))
	}

	env := push.Envelope{
		UserID: opts.UserID,
		Type:   opts.Type,
		Title:  opts.Title,
		Body:   opts.Body,
		Meta:   opts.Meta,
		SentAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if cfg.Push.Transport == transportRedis {
		endpoints, err := openPush(ctx, cfg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open push transport", err)
		}
		defer endpoints.close()
		if err := endpoints.publisher.Publish(ctx, env); err != nil {
			return WrapExitError(ExitFailure, "publish failed", err)
		}
	} else {
		token, err := publishToken(opts)
		if err != nil {
			return WrapExitError(ExitCommandError, "missing credentials", err)
		}
		if err := newAPIClient(cfg, token).Post(ctx, "/events", env, nil); err != nil {
			return WrapExitError(ExitFailure, "publish failed", err)
		}
	}

	logger.Debug("published", "user_id", env.UserID, "type", env.Type)
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s\n", env.Type, env.UserID)
	return nil
}

// publishToken returns the token used to call /events.
func publishToken(opts *PublishOptions) (string, error) {
	if opts.Token != "" {
		return opts.Token, nil
	}
	if secret := opts.Config.Auth.JWTSecret; secret != "" {
		return auth.GenerateToken(secret, opts.UserID, 5*time.Minute)
	}
	return resolveToken("", opts.UserID)
}
