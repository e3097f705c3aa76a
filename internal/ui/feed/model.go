package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carfeed/internal/keys"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/reconcile"
	"github.com/nhle/carfeed/internal/theme"
)

// Backend is the notification feed the view renders and mutates.
// *reconcile.Reconciler satisfies it.
type Backend interface {
	List() []model.Notification
	UnreadCount() int
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
	Subscribe() (<-chan reconcile.Change, func())
}

// ChangedMsg is sent when the backend signals a feed change.
type ChangedMsg struct {
	Change reconcile.Change
}

// NotificationsLoadedMsg carries a fresh copy of the feed.
type NotificationsLoadedMsg struct {
	Notifications []model.Notification
	Unread        int
}

// SelectedMsg is sent when the user opens a notification.
type SelectedMsg struct {
	Notification model.Notification
}

// MarkedMsg reports the outcome of a mark-read action.
type MarkedMsg struct {
	Count int
	Err   error
}

// Model is the notification feed view.
type Model struct {
	list       list.Model
	backend    Backend
	keys       *keys.KeyMap
	changes    <-chan reconcile.Change
	unsub      func()
	unreadOnly bool
	unread     int
	total      int
	lastErr    error
	width      int
	height     int
}

// New creates a feed view subscribed to backend. Call Close when done.
func New(b Backend, k *keys.KeyMap, width, height int) Model {
	return newWithClock(b, k, width, height, nil)
}

func newWithClock(b Backend, k *keys.KeyMap, width, height int, now func() time.Time) Model {
	l := list.New([]list.Item{}, ItemDelegate{now: now}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	changes, unsub := b.Subscribe()

	return Model{
		list:    l,
		backend: b,
		keys:    k,
		changes: changes,
		unsub:   unsub,
		width:   width,
		height:  height,
	}
}

// Init loads the feed and starts listening for changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Load(), waitForChange(m.changes))
}

// Update handles messages for the feed view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case NotificationsLoadedMsg:
		m.unread = msg.Unread
		m.total = len(msg.Notifications)
		items := make([]list.Item, 0, len(msg.Notifications))
		for _, n := range msg.Notifications {
			if m.unreadOnly && n.Read {
				continue
			}
			items = append(items, NotificationItem{Notification: n})
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case ChangedMsg:
		m.unread = msg.Change.Unread
		m.total = msg.Change.Total
		return m, tea.Batch(m.Load(), waitForChange(m.changes))

	case MarkedMsg:
		m.lastErr = msg.Err
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		item, ok := m.list.SelectedItem().(NotificationItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMsg{Notification: item.Notification}
		}

	case key.Matches(msg, m.keys.MarkRead):
		item, ok := m.list.SelectedItem().(NotificationItem)
		if !ok || item.Notification.Read {
			return m, nil
		}
		return m, m.MarkRead(item.Notification.ID)

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.markAllRead()

	case key.Matches(msg, m.keys.ToggleUnread):
		m.unreadOnly = !m.unreadOnly
		m.list.ResetSelected()
		return m, m.Load()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the feed.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.unreadOnly && m.total > 0 {
		return style.Render("You're all caught up.\nPress u to show read notifications.")
	}
	return style.Render("No notifications yet.\n\nNew messages and listing updates will appear here.")
}

// Load returns a command that reads the current feed from the backend.
func (m Model) Load() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		return NotificationsLoadedMsg{
			Notifications: b.List(),
			Unread:        b.UnreadCount(),
		}
	}
}

// MarkRead returns a command that marks id read.
func (m Model) MarkRead(id string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		if err := b.MarkRead(context.Background(), id); err != nil {
			return MarkedMsg{Err: fmt.Errorf("marking %s read: %w", id, err)}
		}
		return MarkedMsg{Count: 1}
	}
}

func (m Model) markAllRead() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		n, err := b.MarkAllRead(context.Background())
		if err != nil {
			return MarkedMsg{Count: n, Err: fmt.Errorf("marking all read: %w", err)}
		}
		return MarkedMsg{Count: n}
	}
}

// waitForChange blocks on the subscription and returns the next change.
// It returns nil once the subscription is closed.
func waitForChange(ch <-chan reconcile.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return ChangedMsg{Change: c}
	}
}

// Close unsubscribes from the backend.
func (m Model) Close() {
	if m.unsub != nil {
		m.unsub()
	}
}

// Unread returns the unread count last reported by the backend.
func (m Model) Unread() int { return m.unread }

// UnreadOnly reports whether read notifications are hidden.
func (m Model) UnreadOnly() bool { return m.unreadOnly }

// Err returns the error of the last mark-read action, if any.
func (m Model) Err() error { return m.lastErr }

// SetSize updates the feed view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
