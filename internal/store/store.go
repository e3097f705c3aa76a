package store

import (
	"context"
	"errors"

	"github.com/nhle/carfeed/internal/model"
)

// ErrNotFound is returned when a notification id does not exist for the user.
var ErrNotFound = errors.New("notification not found")

// NotificationFilter controls which notifications a list query returns.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}

// Store defines the persistence contract for notification records.
//
// CreateNotification returns the record as persisted, with the store-assigned
// ID filled in. MarkNotificationRead is idempotent; it returns ErrNotFound for
// an unknown id.
type Store interface {
	ListNotifications(
		ctx context.Context,
		userID string,
		filter NotificationFilter,
	) ([]model.Notification, error)
	CreateNotification(
		ctx context.Context,
		n model.Notification,
	) (model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID string, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}
