package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/store"
	"github.com/nhle/carfeed/internal/testutil"
)

func newFallback(t *testing.T) (*store.FallbackStore, *testutil.FlakyStore) {
	t.Helper()
	flaky := testutil.NewFlakyStore(testutil.NewTestStore(t))
	return store.NewFallbackStore(flaky, nil), flaky
}

func TestFallbackStore_WriteFailureGoesLocal(t *testing.T) {
	fb, flaky := newFallback(t)
	ctx := context.Background()

	flaky.SetFailing(true)
	saved, err := fb.CreateNotification(ctx, model.Notification{UserID: "u1", Type: model.NotificationTypeStatus, Title: "t"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(saved.ID, store.LocalIDPrefix))

	list, err := fb.ListNotifications(ctx, "u1", store.NotificationFilter{})
	require.NoError(t, err, "list failure of the primary is absorbed")
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
}

func TestFallbackStore_MergesPrimaryAndLocal(t *testing.T) {
	fb, flaky := newFallback(t)
	ctx := context.Background()

	_, err := fb.CreateNotification(ctx, model.Notification{UserID: "u1", Type: model.NotificationTypeCar})
	require.NoError(t, err)

	flaky.SetFailing(true)
	_, err = fb.CreateNotification(ctx, model.Notification{UserID: "u1", Type: model.NotificationTypeCar})
	require.NoError(t, err)
	flaky.SetFailing(false)

	list, err := fb.ListNotifications(ctx, "u1", store.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFallbackStore_PendingReadReplayed(t *testing.T) {
	fb, flaky := newFallback(t)
	ctx := context.Background()

	n, err := fb.CreateNotification(ctx, model.Notification{UserID: "u1", Type: model.NotificationTypeMessage})
	require.NoError(t, err)

	flaky.SetFailing(true)
	require.NoError(t, fb.MarkNotificationRead(ctx, "u1", n.ID))
	flaky.SetFailing(false)

	list, err := fb.ListNotifications(ctx, "u1", store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read, "overlay applies before replay")

	primary, err := flaky.Inner.ListNotifications(ctx, "u1", store.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, primary, "replayed to primary")
}

func TestFallbackStore_MarkAllReadOverlay(t *testing.T) {
	fb, flaky := newFallback(t)
	ctx := context.Background()

	_, err := fb.CreateNotification(ctx, model.Notification{UserID: "u1", Type: model.NotificationTypeMessage})
	require.NoError(t, err)

	flaky.SetFailing(true)
	_, err = fb.CreateNotification(ctx, model.Notification{UserID: "u1", Type: model.NotificationTypeMessage})
	require.NoError(t, err)
	require.NoError(t, fb.MarkAllNotificationsRead(ctx, "u1"))
	flaky.SetFailing(false)

	unread, err := fb.ListNotifications(ctx, "u1", store.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestFallbackStore_UnknownIDNotFound(t *testing.T) {
	fb, _ := newFallback(t)
	assert.ErrorIs(t, fb.MarkNotificationRead(context.Background(), "u1", "nope"), store.ErrNotFound)
}
