package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/carfeed/internal/model"
)

// FallbackStore writes to a primary Store and degrades to a local
// MemoryStore whenever the primary fails. The local records and any read
// marks the primary rejected are merged into every list result, so readers
// keep seeing a complete feed while the primary is down.
type FallbackStore struct {
	primary Store
	local   *MemoryStore
	logger  *slog.Logger

	mu sync.Mutex
	// pendingRead holds primary ids marked read locally because the
	// primary call failed. They are replayed on the next successful list.
	pendingRead map[string]struct{}
	// allReadAt is set when mark-all-read failed on the primary; primary
	// records created at or before it are reported as read.
	allReadAt time.Time
}

// NewFallbackStore wraps primary with a local append-only fallback.
func NewFallbackStore(primary Store, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{
		primary:     primary,
		local:       NewMemoryStore(),
		logger:      logger.With("component", "store"),
		pendingRead: make(map[string]struct{}),
	}
}

// Local exposes the fallback store.
func (f *FallbackStore) Local() *MemoryStore {
	return f.local
}

// CreateNotification writes to the primary, or to the local store when the
// primary write fails.
func (f *FallbackStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	saved, err := f.primary.CreateNotification(ctx, n)
	if err == nil {
		return saved, nil
	}

	f.logger.Warn("primary store write failed, using local fallback",
		"correlation_key", n.CorrelationKey, "error", err)
	n.ID = ""
	return f.local.CreateNotification(ctx, n)
}

// ListNotifications merges primary records with local fallback records and
// applies pending read marks. When the primary is unreachable only local
// records are returned.
func (f *FallbackStore) ListNotifications(
	ctx context.Context,
	userID string,
	filter NotificationFilter,
) ([]model.Notification, error) {
	// Filtering and limits are applied after the merge so overlay read
	// marks are honored.
	all := NotificationFilter{}

	localRecords, err := f.local.ListNotifications(ctx, userID, all)
	if err != nil {
		return nil, err
	}

	primaryRecords, err := f.primary.ListNotifications(ctx, userID, all)
	if err != nil {
		f.logger.Warn("primary store list failed, serving local records",
			"user_id", userID, "error", err)
		primaryRecords = nil
	}

	f.mu.Lock()
	for i := range primaryRecords {
		if _, ok := f.pendingRead[primaryRecords[i].ID]; ok {
			primaryRecords[i].Read = true
		}
		if !f.allReadAt.IsZero() && !primaryRecords[i].CreatedAt.After(f.allReadAt) {
			primaryRecords[i].Read = true
		}
	}
	f.mu.Unlock()

	if err == nil {
		f.flushPending(ctx, userID)
	}

	merged := append(primaryRecords, localRecords...)
	sortNewestFirst(merged)

	out := merged[:0]
	for _, n := range merged {
		if filter.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MarkNotificationRead marks a local record directly, or forwards to the
// primary. A failed primary call is remembered and replayed later.
func (f *FallbackStore) MarkNotificationRead(
	ctx context.Context,
	userID string,
	id string,
) error {
	if f.local.Has(id) {
		return f.local.MarkNotificationRead(ctx, userID, id)
	}

	err := f.primary.MarkNotificationRead(ctx, userID, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}

	f.logger.Warn("primary mark-read failed, keeping local read mark",
		"id", id, "error", err)
	f.mu.Lock()
	f.pendingRead[id] = struct{}{}
	f.mu.Unlock()
	return nil
}

// MarkAllNotificationsRead marks both stores. A primary failure is
// recorded as an overlay and replayed on the next successful list.
func (f *FallbackStore) MarkAllNotificationsRead(
	ctx context.Context,
	userID string,
) error {
	if err := f.local.MarkAllNotificationsRead(ctx, userID); err != nil {
		return err
	}

	if err := f.primary.MarkAllNotificationsRead(ctx, userID); err != nil {
		f.logger.Warn("primary mark-all-read failed, keeping local overlay",
			"user_id", userID, "error", err)
		f.mu.Lock()
		f.allReadAt = time.Now()
		f.mu.Unlock()
	}
	return nil
}

// flushPending replays read marks the primary missed while it was down.
func (f *FallbackStore) flushPending(ctx context.Context, userID string) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.pendingRead))
	for id := range f.pendingRead {
		ids = append(ids, id)
	}
	allReadAt := f.allReadAt
	f.mu.Unlock()

	if !allReadAt.IsZero() {
		if err := f.primary.MarkAllNotificationsRead(ctx, userID); err == nil {
			f.mu.Lock()
			if f.allReadAt.Equal(allReadAt) {
				f.allReadAt = time.Time{}
			}
			f.mu.Unlock()
		}
	}

	for _, id := range ids {
		err := f.primary.MarkNotificationRead(ctx, userID, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			continue
		}
		f.mu.Lock()
		delete(f.pendingRead, id)
		f.mu.Unlock()
	}
}
