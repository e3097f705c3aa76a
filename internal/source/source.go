package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/carfeed/internal/apiclient"
	"github.com/nhle/carfeed/internal/model"
)

// AuthError indicates that the snapshot source rejected the session's
// credential.
type AuthError struct {
	UserID  string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (user %s): %s", e.UserID, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an
// AuthError or an API-level 401.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || apiclient.IsAuthError(err)
}

// SnapshotSource yields the current state of a user's tracked resources.
// Implementations must return a complete snapshot or an error; a partial
// snapshot would read as a burst of spurious changes.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, userID string) (model.Snapshot, error)
}

// SnapshotFunc adapts an ordinary function to a SnapshotSource.
type SnapshotFunc func(ctx context.Context, userID string) (model.Snapshot, error)

// FetchSnapshot calls f.
func (f SnapshotFunc) FetchSnapshot(ctx context.Context, userID string) (model.Snapshot, error) {
	return f(ctx, userID)
}
