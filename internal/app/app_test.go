package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/dedup"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/reconcile"
	csync "github.com/nhle/carfeed/internal/sync"
	"github.com/nhle/carfeed/internal/testutil"
)

type fakeStatus struct {
	connected  bool
	poll       csync.SyncStatus
	refreshErr error
	refreshes  atomic.Int32
}

func (f *fakeStatus) PushConnected() bool          { return f.connected }
func (f *fakeStatus) PollStatus() csync.SyncStatus { return f.poll }

func (f *fakeStatus) Refresh(context.Context) error {
	f.refreshes.Add(1)
	return f.refreshErr
}

func newModel(t *testing.T, status StatusSource) (Model, *reconcile.Reconciler) {
	t.Helper()
	r := reconcile.New("u1", testutil.NewTestStore(t), dedup.New(dedup.DefaultTTL))
	m := New(r, status)
	t.Cleanup(m.feed.Close)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), r
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestApp_ViewShowsBadgeAndStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	status := &fakeStatus{
		connected: true,
		poll:      csync.SyncStatus{State: csync.SyncIdle, LastSync: now.Add(-20 * time.Second)},
	}
	m, r := newModel(t, status)
	m.now = func() time.Time { return now }

	_, ok := r.HandleChangeEvent(context.Background(), model.NewChangeEvent(
		model.NotificationTypeMessage, "New message", "hello",
		model.Meta{model.MetaMessageID: "m1"}, model.OriginPush,
	))
	require.True(t, ok)

	m, _ = update(t, m, m.feed.Load()())

	view := m.View()
	assert.Contains(t, view, "carfeed")
	assert.Contains(t, view, "push: live")
	assert.Contains(t, view, "poll: 20s ago")
	assert.Contains(t, view, "New message")
}

func TestApp_SyncStatusStates(t *testing.T) {
	status := &fakeStatus{}
	m, _ := newModel(t, status)

	assert.Equal(t, "push: reconnecting | poll: waiting", m.syncStatus())

	status.poll.State = csync.SyncError
	assert.Contains(t, m.syncStatus(), "poll: unreachable")

	status.poll.State = csync.SyncRunning
	assert.Contains(t, m.syncStatus(), "poll: syncing")

	m.status = nil
	assert.Equal(t, "offline", m.syncStatus())
}

func TestApp_HelpToggle(t *testing.T) {
	m, _ := newModel(t, &fakeStatus{})

	m, _ = update(t, m, runes("?"))
	assert.Equal(t, ViewHelp, m.currentView)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewFeed, m.currentView)
}

func TestApp_RefreshKey(t *testing.T) {
	status := &fakeStatus{refreshErr: errors.New("boom")}
	m, _ := newModel(t, status)

	m, cmd := update(t, m, runes("r"))
	require.NotNil(t, cmd)
	assert.True(t, m.refreshing)

	// A second press while refreshing is ignored.
	_, again := update(t, m, runes("r"))
	assert.Nil(t, again)

	m, _ = update(t, m, cmd())
	assert.EqualValues(t, 1, status.refreshes.Load())
	assert.False(t, m.refreshing)
	assert.Contains(t, m.keyHints(), "refresh failed: boom")
}

func TestApp_QuitClosesSubscription(t *testing.T) {
	m, _ := newModel(t, &fakeStatus{})

	_, cmd := update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSinceLabel(t *testing.T) {
	assert.Equal(t, "just now", sinceLabel(2*time.Second))
	assert.Equal(t, "42s ago", sinceLabel(42*time.Second))
	assert.Equal(t, "3m ago", sinceLabel(3*time.Minute))
}

func TestApp_OpenDetailAndBack(t *testing.T) {
	m, r := newModel(t, &fakeStatus{})

	n, ok := r.HandleChangeEvent(context.Background(), model.NewChangeEvent(
		model.NotificationTypeCar, "New listing", "2021 Mazda 3 is live",
		model.Meta{model.MetaCarID: "c9"}, model.OriginPush,
	))
	require.True(t, ok)
	m, _ = update(t, m, m.feed.Load()())

	m, cmd := update(t, m, runes("o"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, ViewDetail, m.currentView)
	assert.Contains(t, m.View(), "2021 Mazda 3 is live")

	// Marking read from the detail view goes through the feed backend.
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, cmd = update(t, m, cmd())
	require.NotNil(t, cmd)
	_, _ = update(t, m, cmd())
	assert.Equal(t, 0, r.UnreadCount())

	got := r.List()
	require.Len(t, got, 1)
	assert.Equal(t, n.ID, got[0].ID)
	assert.True(t, got[0].Read)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, ViewFeed, m.currentView)
}
