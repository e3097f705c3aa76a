package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/carfeed/internal/app"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/reconcile"
	"github.com/nhle/carfeed/internal/session"
	"github.com/nhle/carfeed/internal/source/listings"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	UserID string
	Token  string
	Plain  bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow your notification feed live",
		Long: `Start a notification session and follow the feed.

The session subscribes to the push channel, polls your listings for status
changes and merges both into one deduplicated feed. By default an
interactive feed is shown; --plain prints one line per new notification.

Example:
  carfeed watch
  carfeed watch --plain --user u-42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (defaults to session.user_id)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token (defaults to CARFEED_TOKEN or the keyring)")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "print notifications as lines instead of the interactive feed")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	cfg := opts.Config
	if opts.UserID != "" {
		cfg.Session.UserID = opts.UserID
	}
	if cfg.Session.UserID == "" {
		return NewExitError(ExitCommandError, "no user configured: pass --user or run 'carfeed login'")
	}

	// The interactive feed owns the terminal, so logs go to a file.
	logOut, closeLog, err := watchLogOutput(cfg, opts.Plain, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log file", err)
	}
	defer closeLog()
	logger := newLogger(cfg.Log, opts.Verbose, logOut)

	token, err := resolveToken(opts.Token, cfg.Session.UserID)
	if err != nil {
		return WrapExitError(ExitCommandError, "missing credentials", err)
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	client := newAPIClient(cfg, token)
	st, closeStore, err := openStore(cfg, client, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	endpoints, err := openPush(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open push transport", err)
	}
	defer endpoints.close()
	if cfg.Push.Transport != transportRedis {
		logger.Warn("in-process push hub has no remote publishers; relying on polling")
	}

	sess, err := session.New(
		session.FromAppConfig(cfg, token),
		st,
		endpoints.transport,
		listings.NewAdapter(client),
		session.WithLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create session", err)
	}
	if err := sess.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start session", err)
	}
	defer sess.Stop()

	if opts.Plain {
		return printFeed(ctx, cmd.OutOrStdout(), sess.Reconciler())
	}

	p := tea.NewProgram(app.New(sess.Reconciler(), sess), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "feed viewer error", err)
	}
	return nil
}

// watchLogOutput picks the log destination: stderr for plain output, a
// file next to the local database for the interactive feed.
func watchLogOutput(cfg *model.AppConfig, plain bool, stderr io.Writer) (io.Writer, func(), error) {
	if plain {
		return stderr, func() {}, nil
	}
	dir := filepath.Dir(cfg.Store.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "carfeed.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// printFeed writes the current feed, then one line per newly accepted
// notification until ctx is cancelled.
func printFeed(ctx context.Context, w io.Writer, r *reconcile.Reconciler) error {
	changes, unsubscribe := r.Subscribe()
	defer unsubscribe()

	seen := make(map[string]bool)
	emit := func() {
		list := r.List()
		// List is newest first; print oldest unseen first.
		for i := len(list) - 1; i >= 0; i-- {
			n := list[i]
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			fmt.Fprintln(w, formatLine(n))
		}
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			emit()
		}
	}
}

// formatLine renders one notification for plain output.
func formatLine(n model.Notification) string {
	state := "new "
	if n.Read {
		state = "read"
	}
	return fmt.Sprintf("%s [%s] %-7s %s: %s",
		n.CreatedAt.Local().Format("15:04:05"), state, n.Type, n.Title, n.Body)
}
