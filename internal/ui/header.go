package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/airwatch-iot/gasmon/internal/state"
)

// renderHeader renders the status bar: logo, screen, live state, unread
// badge and connectivity.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{
		bg.Render("gasmon", styles.Logo),
		bg.Render(m.viewTitle(), styles.Text.Bold(true)),
	}

	if m.currentView == ViewDetail && m.snapshot.HasDetail {
		if m.snapshot.Detail.View.Live {
			parts = append(parts, bg.Render("LIVE", styles.SuccessText))
		} else {
			parts = append(parts, bg.Render("NO DATA", styles.MutedText))
		}
	}

	if m.snapshot.LiveConnected {
		parts = append(parts, bg.Render("ws ●", styles.SuccessText))
	} else {
		parts = append(parts, bg.Render("ws ○", styles.FaintText))
	}

	if unread := m.snapshot.UnreadCount(); unread > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d unread", unread), styles.WarningText.Bold(true)))
	}

	switch {
	case m.snapshot.IsOffline():
		parts = append(parts, bg.Render("OFFLINE", styles.DangerText))
		parts = append(parts, bg.Render("retrying...", styles.WarningText))
	case m.snapshot.LastError != nil:
		parts = append(parts, bg.Render("last poll failed", styles.WarningText))
	}

	if !m.snapshot.LastUpdated.IsZero() {
		parts = append(parts, bg.Render("updated "+m.snapshot.LastUpdated.Format("15:04:05"), styles.MutedText))
	}

	return bg.FillLine(bg.Spaces(1)+bg.Join(parts, "  "), m.width)
}

func (m Model) viewTitle() string {
	switch m.currentView {
	case ViewDetail:
		if m.snapshot.HasDetail && m.snapshot.Detail.View.HasSnapshot {
			return "Device · " + truncate(m.snapshot.Detail.View.Device.Name, 30)
		}
		return "Device"
	case ViewNotifications:
		return "Notifications"
	case ViewLogs:
		return "Logs · ≥" + strings.ToUpper(m.logLevel.String())
	default:
		return "Devices"
	}
}

// renderCommandBar lists the keys that act on the current screen.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()

	var hints [][2]string
	switch m.currentView {
	case ViewDevices:
		hints = [][2]string{{"j/k", "move"}, {"enter", "open"}, {"a", "add"}, {"n", "notifications"}, {"l", "logs"}, {"R", "refresh"}}
	case ViewDetail:
		hints = [][2]string{{"w", "window"}, {"f", "fan"}, {"r", "resolve"}, {"c", "calibrate"}, {"s", "settings"}, {"R", "refresh"}, {"esc", "back"}}
	case ViewNotifications:
		hints = [][2]string{{"j/k", "move"}, {"m", "read"}, {"M", "read all"}, {"r", "resolve"}, {"R", "refresh"}, {"esc", "back"}}
	case ViewLogs:
		hints = [][2]string{{"j/k", "scroll"}, {"v", "level"}, {"R", "reload"}, {"esc", "back"}}
	}
	hints = append(hints, [2]string{"h", "help"}, [2]string{"e", "quit"})

	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning))
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, keyStyle.Render(h[0])+" "+styles.MutedText.Render(h[1]))
	}
	return " " + strings.Join(parts, styles.FaintText.Render("  ·  "))
}

// renderStatusLine shows the newest notice while it is fresh.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles()
	notice, ok := m.snapshot.LatestNotice()
	if !ok || m.now().Sub(notice.At) > NoticeTTL {
		return ""
	}
	style := styles.InfoText
	if notice.Level == state.LevelError {
		style = styles.DangerText
	}
	return " " + style.Render(truncate(notice.Message, maxInt(10, m.width-2)))
}
