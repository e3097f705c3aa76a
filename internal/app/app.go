// Package app is the root Bubble Tea model of the feed viewer.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/carfeed/internal/keys"
	csync "github.com/nhle/carfeed/internal/sync"
	"github.com/nhle/carfeed/internal/ui"
	"github.com/nhle/carfeed/internal/ui/detail"
	"github.com/nhle/carfeed/internal/ui/feed"
	helpview "github.com/nhle/carfeed/internal/ui/help"
)

// statusTickInterval is how often the header's connection status is
// re-rendered.
const statusTickInterval = time.Second

// StatusSource reports the health of the live channels and forces a
// resync. *session.Session satisfies it.
type StatusSource interface {
	PushConnected() bool
	PollStatus() csync.SyncStatus
	Refresh(ctx context.Context) error
}

// statusTickMsg triggers a header refresh.
type statusTickMsg time.Time

// refreshDoneMsg carries the result of a manual refresh.
type refreshDoneMsg struct {
	err error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewFeed ViewState = iota
	ViewDetail
	ViewHelp
)

// Model is the root Bubble Tea model that manages view routing and the
// header and status bar.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout      ui.Layout
	keys        *keys.KeyMap
	feed        feed.Model
	detail      detail.Model
	helpView    helpview.Model
	status      StatusSource
	refreshing  bool
	statusMsg   string
	now         func() time.Time
	ready       bool
}

// New creates a root model rendering backend's feed. status may be nil
// when no live session backs the feed.
func New(backend feed.Backend, status StatusSource) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewFeed,
		keys:        k,
		feed:        feed.New(backend, k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		status:      status,
		now:         time.Now,
	}
}

// Init loads the feed and starts the status ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.feed.Init(), tickStatus())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.feed.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		m.detail.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		m.helpView.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		return m, nil

	case feed.SelectedMsg:
		m.currentView = ViewDetail
		m.detail.SetNotification(msg.Notification)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewFeed
		return m, nil

	case detail.MarkReadMsg:
		return m, m.feed.MarkRead(msg.ID)

	case statusTickMsg:
		return m, tickStatus()

	case refreshDoneMsg:
		m.refreshing = false
		if msg.err != nil {
			m.statusMsg = "refresh failed: " + msg.err.Error()
		} else {
			m.statusMsg = ""
		}
		return m, nil

	case feed.MarkedMsg:
		if msg.Err != nil {
			m.statusMsg = msg.Err.Error()
		} else if msg.Count > 1 {
			m.statusMsg = fmt.Sprintf("marked %d notifications read", msg.Count)
		} else {
			m.statusMsg = ""
		}
		var cmd tea.Cmd
		m.feed, cmd = m.feed.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.feed.Close()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
			} else {
				m.previousView = m.currentView
				m.currentView = ViewHelp
			}
			return m, nil

		case msg.String() == "esc" && m.currentView == ViewHelp:
			m.currentView = m.previousView
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			if m.status == nil || m.refreshing {
				return m, nil
			}
			m.refreshing = true
			return m, m.refresh()
		}

		switch m.currentView {
		case ViewHelp:
			return m, nil
		case ViewDetail:
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.feed, cmd = m.feed.Update(msg)
	return m, cmd
}

// View renders the full frame.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("carfeed", m.feed.Unread(), m.syncStatus())

	var content string
	switch m.currentView {
	case ViewHelp:
		content = m.helpView.View()
	case ViewDetail:
		content = m.detail.View()
	default:
		content = m.feed.View()
	}

	statusBar := m.layout.RenderStatusBar(m.keyHints())
	return m.layout.RenderWithFrame(header, content, statusBar)
}

// syncStatus returns a short string describing push and poll health.
func (m Model) syncStatus() string {
	if m.status == nil {
		return "offline"
	}

	push := "push: live"
	if !m.status.PushConnected() {
		push = "push: reconnecting"
	}

	ps := m.status.PollStatus()
	var poll string
	switch {
	case m.refreshing || ps.State == csync.SyncRunning:
		poll = "poll: syncing"
	case ps.State == csync.SyncError:
		poll = "poll: unreachable"
	case ps.LastSync.IsZero():
		poll = "poll: waiting"
	default:
		poll = "poll: " + sinceLabel(m.now().Sub(ps.LastSync))
	}

	return push + " | " + poll
}

// sinceLabel formats the age of the last successful poll.
func sinceLabel(d time.Duration) string {
	switch {
	case d < 5*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMsg != "" && m.currentView == ViewFeed {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | enter mark read | j/k scroll"
	default:
		hints := "q quit | ? help | o open | enter read | A read all | r refresh | u unread only"
		if m.feed.UnreadOnly() {
			hints = "unread only | " + hints
		}
		return hints
	}
}

func (m Model) refresh() tea.Cmd {
	s := m.status
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return refreshDoneMsg{err: s.Refresh(ctx)}
	}
}

func tickStatus() tea.Cmd {
	return tea.Tick(statusTickInterval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}
