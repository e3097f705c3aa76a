package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nhle/carfeed/internal/apiclient"
	"github.com/nhle/carfeed/internal/model"
)

// CreateNotificationRequest is the body of POST /notifications.
type CreateNotificationRequest struct {
	Type           model.NotificationType `json:"type" binding:"required"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Meta           model.Meta             `json:"meta,omitempty"`
	CorrelationKey string                 `json:"correlation_key,omitempty"`
	CreatedAt      time.Time              `json:"created_at,omitempty"`
}

// MarkReadRequest is the body of PATCH /notifications/{id}.
type MarkReadRequest struct {
	Read bool `json:"read"`
}

// RemoteStore implements Store against the marketplace notification API.
// The user is identified by the client's bearer token; the userID arguments
// only scope the returned records.
type RemoteStore struct {
	client *apiclient.Client
}

// NewRemoteStore creates a RemoteStore using client.
func NewRemoteStore(client *apiclient.Client) *RemoteStore {
	return &RemoteStore{client: client}
}

// ListNotifications calls GET /notifications.
func (r *RemoteStore) ListNotifications(
	ctx context.Context,
	userID string,
	filter NotificationFilter,
) ([]model.Notification, error) {
	q := url.Values{}
	if filter.UnreadOnly {
		q.Set("unread", "true")
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []model.Notification
	if err := r.client.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("listing remote notifications: %w", err)
	}
	for i := range out {
		if out[i].UserID == "" {
			out[i].UserID = userID
		}
	}
	return out, nil
}

// CreateNotification calls POST /notifications and returns the record with
// the server-assigned id.
func (r *RemoteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	req := CreateNotificationRequest{
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Meta:           n.Meta,
		CorrelationKey: n.CorrelationKey,
		CreatedAt:      n.CreatedAt,
	}

	var created model.Notification
	if err := r.client.Post(ctx, "/notifications", req, &created); err != nil {
		return model.Notification{}, fmt.Errorf("creating remote notification: %w", err)
	}
	if created.ID == "" {
		return model.Notification{}, fmt.Errorf("creating remote notification: server returned no id")
	}

	// The server echoes id and created_at; the rest of the record is ours.
	out := n
	out.ID = created.ID
	if !created.CreatedAt.IsZero() {
		out.CreatedAt = created.CreatedAt
	}
	return out, nil
}

// MarkNotificationRead calls PATCH /notifications/{id}.
func (r *RemoteStore) MarkNotificationRead(
	ctx context.Context,
	_ string,
	id string,
) error {
	path := "/notifications/" + url.PathEscape(id)
	if err := r.client.Patch(ctx, path, MarkReadRequest{Read: true}, nil); err != nil {
		if apiclient.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("marking remote notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead calls POST /notifications/mark-all-read.
func (r *RemoteStore) MarkAllNotificationsRead(
	ctx context.Context,
	_ string,
) error {
	if err := r.client.Post(ctx, "/notifications/mark-all-read", struct{}{}, nil); err != nil {
		return fmt.Errorf("marking all remote notifications read: %w", err)
	}
	return nil
}
