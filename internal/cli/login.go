package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/carfeed/internal/credential"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/ui/login"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store your user id, API URL and token",
		Long: `Prompt for the marketplace user id, API URL and access token.

The token is saved in the system keyring; the user id and API URL are
written to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config

			form := login.New(login.Credentials{
				UserID:  cfg.Session.UserID,
				BaseURL: cfg.API.BaseURL,
			}, 80)
			final, err := tea.NewProgram(form).Run()
			if err != nil {
				return WrapExitError(ExitFailure, "login form error", err)
			}
			creds, ok := final.(login.Model).Result()
			if !ok {
				return NewExitError(ExitCommandError, "login cancelled")
			}

			ring, err := credential.Open()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to open keyring", err)
			}
			return saveLogin(cmd, rootOpts.ConfigPath, cfg, ring, creds)
		},
	}
}

// saveLogin persists the token in the keyring and the rest in the config.
func saveLogin(
	cmd *cobra.Command,
	configPath string,
	cfg *model.AppConfig,
	ring *credential.Store,
	creds login.Credentials,
) error {
	if err := ring.SetToken(creds.UserID, creds.Token); err != nil {
		return WrapExitError(ExitFailure, "failed to store token", err)
	}

	cfg.Session.UserID = creds.UserID
	cfg.API.BaseURL = creds.BaseURL
	if err := model.SaveConfig(configPath, cfg); err != nil {
		return WrapExitError(ExitFailure, "failed to save config", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", creds.UserID)
	return nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = rootOpts.Config.Session.UserID
			}
			if userID == "" {
				return NewExitError(ExitCommandError, "no user configured: pass --user")
			}

			ring, err := credential.Open()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to open keyring", err)
			}
			return removeLogin(cmd, ring, userID)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to session.user_id)")
	return cmd
}

func removeLogin(cmd *cobra.Command, ring *credential.Store, userID string) error {
	if err := ring.DeleteToken(userID); err != nil && !errors.Is(err, credential.ErrNoToken) {
		return WrapExitError(ExitFailure, "failed to remove token", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s\n", userID)
	return nil
}
