package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/store"
)

// ErrUnavailable is returned by FlakyStore while it is failing.
var ErrUnavailable = errors.New("store unavailable")

// FlakyStore wraps a Store and fails every call while Failing is set.
type FlakyStore struct {
	Inner store.Store

	mu      sync.Mutex
	failing bool
	calls   map[string]int
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner store.Store) *FlakyStore {
	return &FlakyStore{Inner: inner, calls: make(map[string]int)}
}

// SetFailing toggles failure mode.
func (f *FlakyStore) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// Calls returns how many times the named method was invoked.
func (f *FlakyStore) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FlakyStore) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.failing {
		return ErrUnavailable
	}
	return nil
}

func (f *FlakyStore) ListNotifications(
	ctx context.Context,
	userID string,
	filter store.NotificationFilter,
) ([]model.Notification, error) {
	if err := f.enter("ListNotifications"); err != nil {
		return nil, err
	}
	return f.Inner.ListNotifications(ctx, userID, filter)
}

func (f *FlakyStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	if err := f.enter("CreateNotification"); err != nil {
		return model.Notification{}, err
	}
	return f.Inner.CreateNotification(ctx, n)
}

func (f *FlakyStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := f.enter("MarkNotificationRead"); err != nil {
		return err
	}
	return f.Inner.MarkNotificationRead(ctx, userID, id)
}

func (f *FlakyStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	if err := f.enter("MarkAllNotificationsRead"); err != nil {
		return err
	}
	return f.Inner.MarkAllNotificationsRead(ctx, userID)
}
