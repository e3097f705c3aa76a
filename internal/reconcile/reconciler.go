// Package reconcile merges push and poll change events into one
// deduplicated, ordered notification feed per user session.
//
// All writes go through a single critical section: the dedup decision, the
// store write and the view update for one event complete before the next
// event is considered. Reads (List, UnreadCount) only take the view's
// read lock and never wait on store I/O.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nhle/carfeed/internal/dedup"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/store"
)

// ErrUnknownNotification is returned by MarkRead for ids not in the feed.
var ErrUnknownNotification = errors.New("unknown notification")

// DefaultStoreTimeout bounds one store call made while holding the feed lock.
const DefaultStoreTimeout = 10 * time.Second

// Change is the payload of the "notifications changed" signal.
type Change struct {
	Unread int
	Total  int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for acceptance timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStoreTimeout bounds each store write. Non-positive values are ignored.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// Reconciler owns one user's notification feed.
type Reconciler struct {
	userID string
	store  store.Store
	guard  *dedup.Guard
	logger *slog.Logger
	now    func() time.Time

	storeTimeout time.Duration

	// mu serializes accept, write and view update.
	mu        sync.Mutex
	lastStamp time.Time

	view *view

	subsMu  sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// New creates a Reconciler for userID writing to st and deduplicating
// through guard.
func New(userID string, st store.Store, guard *dedup.Guard, opts ...Option) *Reconciler {
	r := &Reconciler{
		userID: userID,
		store:  st,
		guard:  guard,
		logger:       slog.Default(),
		now:          time.Now,
		storeTimeout: DefaultStoreTimeout,
		view:         newView(),
		subs:         make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reconcile", "user_id", userID)
	return r
}

// UserID returns the feed owner.
func (r *Reconciler) UserID() string {
	return r.userID
}

// HandleChangeEvent decides whether ev becomes a notification. Duplicates
// within the dedup window are dropped and reported as false. An accepted
// event is always added to the feed, even if the store write fails.
func (r *Reconciler) HandleChangeEvent(ctx context.Context, ev model.ChangeEvent) (model.Notification, bool) {
	if !ev.Type.Valid() {
		r.logger.Warn("dropping change event with unknown type", "type", ev.Type)
		return model.Notification{}, false
	}
	key := ev.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.guard.Accept(key) {
		r.logger.Debug("duplicate change event", "correlation_key", key, "origin", ev.Origin)
		return model.Notification{}, false
	}

	n := model.Notification{
		UserID:         r.userID,
		Type:           ev.Type,
		Title:          ev.Title,
		Body:           ev.Body,
		CreatedAt:      r.stampLocked(),
		Meta:           ev.Meta.Clone(),
		CorrelationKey: key,
	}

	// Teardown must not abort a write that already passed the guard.
	writeCtx, cancel := r.writeContext(ctx)
	saved, err := r.store.CreateNotification(writeCtx, n)
	cancel()
	switch {
	case err != nil:
		r.logger.Warn("storing notification failed, keeping it in memory",
			"correlation_key", key, "error", err)
		saved = n
		saved.ID = store.NewLocalID()
	case saved.ID == "":
		saved.ID = store.NewLocalID()
	}
	// The feed is ordered by acceptance, whatever time the store echoes.
	saved.CreatedAt = n.CreatedAt
	saved.Read = false

	r.view.insert(saved)
	r.logger.Debug("notification accepted", "id", saved.ID, "correlation_key", key, "origin", ev.Origin)
	r.notify()
	return saved, true
}

// MarkRead marks one notification read. Marking a read notification is a
// no-op.
func (r *Reconciler) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.view.get(id); !ok {
		return fmt.Errorf("marking %s read: %w", id, ErrUnknownNotification)
	}
	if !r.view.setRead(id) {
		return nil
	}

	writeCtx, cancel := r.writeContext(ctx)
	err := r.store.MarkNotificationRead(writeCtx, r.userID, id)
	cancel()
	if err != nil {
		if strings.HasPrefix(id, store.LocalIDPrefix) && errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("in-memory notification not in store", "id", id)
		} else {
			r.logger.Warn("storing read mark failed", "id", id, "error", err)
		}
	}
	r.notify()
	return nil
}

// MarkAllRead marks every notification read and returns how many changed.
func (r *Reconciler) MarkAllRead(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.view.markAll()
	if changed == 0 {
		return 0, nil
	}

	writeCtx, cancel := r.writeContext(ctx)
	err := r.store.MarkAllNotificationsRead(writeCtx, r.userID)
	cancel()
	if err != nil {
		r.logger.Warn("storing mark-all-read failed", "error", err)
	}
	r.notify()
	return changed, nil
}

// List returns the feed, newest first.
func (r *Reconciler) List() []model.Notification {
	return r.view.list()
}

// UnreadCount returns the number of unread notifications in the feed.
func (r *Reconciler) UnreadCount() int {
	unread, _ := r.view.counts()
	return unread
}

// Refresh merges the user's stored history into the feed. Records seen
// within the dedup window are remembered so a late duplicate of an event
// accepted by an earlier session is still dropped.
func (r *Reconciler) Refresh(ctx context.Context) error {
	stored, err := r.store.ListNotifications(ctx, r.userID, store.NotificationFilter{})
	if err != nil {
		return fmt.Errorf("loading notification history: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, n := range stored {
		if n.CorrelationKey != "" && now.Sub(n.CreatedAt) < r.guard.TTL() {
			r.guard.Remember(n.CorrelationKey, n.CreatedAt)
		}
	}

	if r.view.merge(stored) {
		r.notify()
	}
	return nil
}

// Subscribe returns a channel signalled whenever the feed changes. Signals
// coalesce: a slow reader sees only the latest state. The returned func
// unsubscribes and closes the channel.
func (r *Reconciler) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 1)

	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs, id)
			r.subsMu.Unlock()
			close(ch)
		})
	}
}

// Run consumes both producer channels until ctx is cancelled or both are
// closed. It is the single consumer of change events for the session.
func (r *Reconciler) Run(ctx context.Context, push, poll <-chan model.ChangeEvent) error {
	for push != nil || poll != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-push:
			if !ok {
				push = nil
				continue
			}
			r.handle(ctx, ev)
		case ev, ok := <-poll:
			if !ok {
				poll = nil
				continue
			}
			r.handle(ctx, ev)
		}
	}
	return nil
}

func (r *Reconciler) handle(ctx context.Context, ev model.ChangeEvent) {
	if ctx.Err() != nil {
		return
	}
	r.HandleChangeEvent(ctx, ev)
}

// stampLocked returns a strictly increasing acceptance time.
// writeContext detaches a store call from ctx cancellation but keeps it
// bounded, since it runs while the feed lock is held.
func (r *Reconciler) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
}

func (r *Reconciler) stampLocked() time.Time {
	t := r.now()
	if !t.After(r.lastStamp) {
		t = r.lastStamp.Add(time.Nanosecond)
	}
	r.lastStamp = t
	return t
}

// notify sends the current counts to every subscriber without blocking.
func (r *Reconciler) notify() {
	unread, total := r.view.counts()
	c := Change{Unread: unread, Total: total}

	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}
