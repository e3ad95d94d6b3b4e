package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
)

// orderedNotifications returns the notification list in display order,
// which follows the day grouping.
func (m Model) orderedNotifications() []api.Notification {
	var out []api.Notification
	for _, g := range reconcile.GroupNotifications(m.snapshot.Notifications, m.now()) {
		out = append(out, g.Items...)
	}
	return out
}

// handleNotificationsKey processes keyboard input for the notifications
// screen.
func (m Model) handleNotificationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.notifications == nil {
		return m, nil
	}
	notifications := m.notifications

	if key.Matches(msg, m.keys.MarkAllRead) {
		if m.snapshot.UnreadCount() == 0 {
			return m, nil
		}
		return m, m.actionCmd("mark all read", notifications.MarkAllRead)
	}

	items := m.orderedNotifications()
	count := len(items)
	if count == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedNotification < count-1 {
			m.selectedNotification++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedNotification > 0 {
			m.selectedNotification--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedNotification = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedNotification = count - 1
	case key.Matches(msg, m.keys.MarkRead):
		if m.selectedNotification >= count {
			return m, nil
		}
		item := items[m.selectedNotification]
		if item.Read {
			return m, nil
		}
		return m, m.actionCmd("mark read", func(ctx context.Context) error {
			return notifications.MarkRead(ctx, item.ID)
		})
	case key.Matches(msg, m.keys.ResolveAlert):
		if m.selectedNotification >= count {
			return m, nil
		}
		alert := items[m.selectedNotification].Alert
		if alert == nil || alert.Resolved {
			return m, nil
		}
		alertID := alert.ID
		return m, m.actionCmd("resolve alert", func(ctx context.Context) error {
			return notifications.ResolveAlert(ctx, alertID)
		})
	}
	return m, nil
}

// renderNotifications renders notifications grouped by day.
func (m Model) renderNotifications() string {
	styles := m.theme.Styles()
	if !m.snapshot.HasNotifications {
		return styles.MutedText.Render(" Loading notifications...")
	}
	groups := reconcile.GroupNotifications(m.snapshot.Notifications, m.now())
	if len(groups) == 0 {
		return styles.MutedText.Render(" No notifications.")
	}

	var lines []string
	selectedLine := 0
	idx := 0
	for _, g := range groups {
		lines = append(lines, " "+styles.AccentText.Bold(true).Render(string(g.Bucket)))
		for _, n := range g.Items {
			if idx == m.selectedNotification {
				selectedLine = len(lines)
			}
			lines = append(lines, m.renderNotificationRow(n, idx == m.selectedNotification))
			idx++
		}
	}

	// Scroll so the cursor stays visible.
	height := m.contentHeight()
	start := 0
	if selectedLine >= height {
		start = selectedLine - height + 1
	}
	end := start + height
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderNotificationRow(n api.Notification, selected bool) string {
	styles := m.theme.Styles()

	marker := ternary(n.Read, "  ", "● ")
	when := n.ParsedCreatedAt().In(m.now().Location()).Format("15:04")
	if n.ParsedCreatedAt().IsZero() {
		when = "--:--"
	}
	title := truncate(n.Title, 32)
	alertState := ""
	if n.Alert != nil {
		alertState = ternary(n.Alert.Resolved, "resolved", "active")
	}
	msgWidth := maxInt(10, m.width-58)
	message := truncate(n.Message, msgWidth)

	if selected {
		row := " " + marker + padRight(when, 7) + padRight(title, 34) + padRight(alertState, 10) + message
		return styles.Selected.Width(m.width).Render(row)
	}

	stateStyle := styles.FaintText
	if n.Alert != nil && !n.Alert.Resolved {
		stateStyle = styles.DangerText
	}

	titleStyle := styles.Text.Bold(!n.Read)
	if n.Alert != nil && !n.Read {
		titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.StatusColor(string(n.Alert.Severity)))).
			Bold(true)
	}
	return " " + styles.WarningText.Render(marker) +
		styles.FaintText.Render(padRight(when, 7)) +
		titleStyle.Render(padRight(title, 34)) +
		stateStyle.Render(padRight(alertState, 10)) +
		styles.MutedText.Render(message)
}
