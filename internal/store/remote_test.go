package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/apiclient"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/store"
)

func newRemote(t *testing.T, h http.HandlerFunc) *store.RemoteStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return store.NewRemoteStore(apiclient.New(srv.URL, "tok", apiclient.WithMaxRetries(0)))
}

func TestRemoteStore_ListSendsFilter(t *testing.T) {
	rs := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("unread"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]model.Notification{{ID: "n1", Type: model.NotificationTypeCar}})
	})

	list, err := rs.ListNotifications(context.Background(), "u1", store.NotificationFilter{UnreadOnly: true, Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].UserID)
}

func TestRemoteStore_CreateKeepsLocalFields(t *testing.T) {
	serverTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rs := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req store.CreateNotificationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "status:c1:Sold", req.CorrelationKey)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Notification{ID: "srv-1", CreatedAt: serverTime})
	})

	saved, err := rs.CreateNotification(context.Background(), model.Notification{
		UserID:         "u1",
		Type:           model.NotificationTypeStatus,
		Title:          "Listing status updated",
		CorrelationKey: "status:c1:Sold",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", saved.ID)
	assert.Equal(t, "Listing status updated", saved.Title)
	assert.True(t, serverTime.Equal(saved.CreatedAt))
}

func TestRemoteStore_CreateWithoutIDFails(t *testing.T) {
	rs := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := rs.CreateNotification(context.Background(), model.Notification{Type: model.NotificationTypeCar})
	assert.Error(t, err)
}

func TestRemoteStore_MarkReadNotFound(t *testing.T) {
	rs := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"notification not found"}`))
	})

	err := rs.MarkNotificationRead(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoteStore_MarkAllRead(t *testing.T) {
	called := false
	rs := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/notifications/mark-all-read", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, rs.MarkAllNotificationsRead(context.Background(), "u1"))
	assert.True(t, called)
}
