package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/carfeed/internal/model"
)

// LocalIDPrefix marks ids generated on this device rather than by a server.
const LocalIDPrefix = "local-"

// NewLocalID returns a fresh device-local notification id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.New().String()
}

// MemoryStore is an append-only in-process Store. It survives only for the
// lifetime of the process and backs FallbackStore when the primary store is
// unreachable. Records are never removed; only the read flag changes.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.Notification
	index   map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[string]int),
	}
}

// CreateNotification appends n, assigning a local id when it has none.
// An id that is already present gets a fresh local id.
func (m *MemoryStore) CreateNotification(
	_ context.Context,
	n model.Notification,
) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = NewLocalID()
	}
	if _, dup := m.index[n.ID]; dup {
		n.ID = NewLocalID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.Meta = n.Meta.Clone()

	m.index[n.ID] = len(m.records)
	m.records = append(m.records, n)
	return n, nil
}

// ListNotifications returns the user's records, newest first.
func (m *MemoryStore) ListNotifications(
	_ context.Context,
	userID string,
	filter NotificationFilter,
) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Notification
	for _, n := range m.records {
		if n.UserID != userID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		n.Meta = n.Meta.Clone()
		out = append(out, n)
	}

	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MarkNotificationRead sets the read flag of one record.
func (m *MemoryStore) MarkNotificationRead(
	_ context.Context,
	userID string,
	id string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[id]
	if !ok || m.records[i].UserID != userID {
		return ErrNotFound
	}
	m.records[i].Read = true
	return nil
}

// MarkAllNotificationsRead sets the read flag on all of the user's records.
func (m *MemoryStore) MarkAllNotificationsRead(
	_ context.Context,
	userID string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].UserID == userID {
			m.records[i].Read = true
		}
	}
	return nil
}

// Has reports whether id belongs to a locally stored record.
func (m *MemoryStore) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[id]
	return ok
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// sortNewestFirst orders notifications by CreatedAt descending, breaking ties
// by id so the order is stable across calls.
func sortNewestFirst(ns []model.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID > ns[j].ID
	})
}
