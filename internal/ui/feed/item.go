package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string { return i.Notification.Title }

// Title returns the notification title for the list.
func (i NotificationItem) Title() string { return i.Notification.Title }

// Description returns the body line for the list.
func (i NotificationItem) Description() string { return i.Notification.Body }

// ItemDelegate implements list.ItemDelegate for rendering feed entries.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 1 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a notification as a heading line and a body line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(NotificationItem)
	if !ok {
		return
	}
	fmt.Fprint(w, d.render(it.Notification, index == m.Index(), m.Width()))
}

func (d ItemDelegate) render(n model.Notification, selected bool, width int) string {
	marker := " "
	if !n.Read {
		marker = "●"
	}

	label := theme.TypeLabelStyle(n.Type).Render(typeLabel(n.Type))
	when := theme.HelpStyle.Render(relativeTime(n.CreatedAt, d.currentTime()))

	heading := fmt.Sprintf("%s %s %s  %s", marker, label, n.Title, when)

	body := n.Body
	if n.Type == model.NotificationTypeStatus {
		if status := n.Meta[model.MetaStatus]; status != "" {
			styled := theme.ListingStatusStyle(status).Render(status)
			body = strings.Replace(body, status, styled, 1)
		}
	}
	body = "    " + body

	style := theme.ReadItemStyle
	if !n.Read {
		style = theme.UnreadItemStyle
	}
	if selected {
		style = theme.SelectedItemStyle
	}
	if width > 0 {
		style = style.MaxWidth(width)
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, heading, body))
}

func (d ItemDelegate) currentTime() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// typeLabel returns the short badge text for a notification type.
func typeLabel(t model.NotificationType) string {
	switch t {
	case model.NotificationTypeMessage:
		return "MSG"
	case model.NotificationTypeCar:
		return "CAR"
	case model.NotificationTypeStatus:
		return "STS"
	case model.NotificationTypeSystem:
		return "SYS"
	default:
		return "???"
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
