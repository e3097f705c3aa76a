package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carfeed/internal/keys"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/theme"
)

// BackMsg signals the parent to navigate back to the feed.
type BackMsg struct{}

// MarkReadMsg asks the parent to mark the shown notification read.
type MarkReadMsg struct {
	ID string
}

// metaLabels gives friendly names to well-known meta keys.
var metaLabels = map[string]string{
	model.MetaCarID:          "Listing",
	model.MetaMessageID:      "Message",
	model.MetaConversationID: "Conversation",
	model.MetaStatus:         "Status",
	model.MetaPreviousStatus: "Previous",
	model.MetaSystemID:       "Notice",
}

// Model is the notification detail view component.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.MarkRead):
			if m.notification != nil && !m.notification.Read {
				id := m.notification.ID
				m.notification.Read = true
				m.viewport.SetContent(m.renderContent())
				return m, func() tea.Msg {
					return MarkReadMsg{ID: id}
				}
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	n := m.notification
	if n == nil {
		return ""
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	typeBadge := theme.TypeLabelStyle(n.Type).Render(strings.ToUpper(string(n.Type)))
	readBadge := theme.BadgeStyle.Render("UNREAD")
	if n.Read {
		readBadge = theme.ReadItemStyle.UnsetPaddingLeft().Render("read")
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, typeBadge, "  ", readBadge))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-13s", label+":")), value)
	}

	if !n.CreatedAt.IsZero() {
		sections = append(sections, row("Received", valStyle.Render(n.CreatedAt.Local().Format("2006-01-02 15:04:05"))))
	}
	sections = append(sections, row("ID", valStyle.Render(n.ID)))

	metaKeys := make([]string, 0, len(n.Meta))
	for k := range n.Meta {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	for _, k := range metaKeys {
		label, ok := metaLabels[k]
		if !ok {
			label = k
		}
		v := n.Meta[k]
		rendered := valStyle.Render(v)
		if k == model.MetaStatus || k == model.MetaPreviousStatus {
			rendered = theme.ListingStatusStyle(v).Render(v)
		}
		sections = append(sections, row(label, rendered))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	body := n.Body
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message body")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification being displayed and re-renders
// the content.
func (m *Model) SetNotification(n model.Notification) {
	n.Meta = n.Meta.Clone()
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
