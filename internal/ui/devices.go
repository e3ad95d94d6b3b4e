package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
)

// handleDevicesKey processes keyboard input for the device list.
func (m Model) handleDevicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.AddDevice) && m.devices != nil {
		modal := newNewDeviceModal()
		m.modal = modal
		return m, modal.Init()
	}

	count := len(m.snapshot.Devices)
	if count == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedDevice < count-1 {
			m.selectedDevice++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedDevice > 0 {
			m.selectedDevice--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedDevice = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedDevice = count - 1
	case key.Matches(msg, m.keys.Open):
		m = m.switchView(ViewDetail)
		return m, fetchSnapshotCmd(m.store)
	}
	return m, nil
}

func (m Model) selectedDeviceItem() (api.Device, bool) {
	if m.selectedDevice < 0 || m.selectedDevice >= len(m.snapshot.Devices) {
		return api.Device{}, false
	}
	return m.snapshot.Devices[m.selectedDevice], true
}

// clampSelections keeps cursors inside lists that may have shrunk.
func (m *Model) clampSelections() {
	if n := len(m.snapshot.Devices); m.selectedDevice >= n {
		m.selectedDevice = maxInt(0, n-1)
	}
	if n := len(m.snapshot.Notifications); m.selectedNotification >= n {
		m.selectedNotification = maxInt(0, n-1)
	}
}

// renderDevices renders the device table.
func (m Model) renderDevices() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	if !m.snapshot.HasDevices {
		if m.snapshot.LastError != nil {
			return styles.DangerText.Render(" Could not load devices: ") + styles.MutedText.Render(m.snapshot.LastError.Error())
		}
		return styles.MutedText.Render(" Loading devices...")
	}
	if len(m.snapshot.Devices) == 0 {
		return styles.MutedText.Render(" No devices registered for this account. Press a to add one.")
	}

	compact := m.width < LayoutCompactWidth
	wide := m.width >= LayoutWideWidth

	header := " " + padRight("NAME", 24) + padRight("STATUS", 14) + padRight("ALERTS", 8)
	if !compact {
		header += padRight("LOCATION", 22) + padRight("WINDOW", 9) + padRight("FAN", 6)
	}
	if wide {
		header += "LAST SEEN"
	}

	lines := []string{styles.FaintText.Render(header)}

	// Keep the cursor on screen.
	rows := maxInt(1, height-1)
	start := 0
	if m.selectedDevice >= rows {
		start = m.selectedDevice - rows + 1
	}

	now := m.now()
	for i := start; i < len(m.snapshot.Devices) && i < start+rows; i++ {
		lines = append(lines, m.renderDeviceRow(m.snapshot.Devices[i], i == m.selectedDevice, compact, wide, now))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDeviceRow(d api.Device, selected, compact, wide bool, now time.Time) string {
	styles := m.theme.Styles()

	active := len(d.ActiveAlerts())
	alerts := fmt.Sprintf("%d", active)

	name := padRight(truncate(d.Name, 22), 24)
	status := padRight(string(d.Status), 14)
	alertCol := padRight(alerts, 8)

	if selected {
		row := " " + name + status + alertCol
		if !compact {
			row += padRight(truncate(optional(d.Location, reconcile.Placeholder), 20), 22) +
				padRight(ternary(d.WindowOpen, "open", "closed"), 9) +
				padRight(ternary(d.FanOn, "on", "off"), 6)
		}
		if wide {
			row += formatSeen(d.ParsedLastSeen(), now)
		}
		return styles.Selected.Width(m.width).Render(row)
	}

	statusStyle := styles.MutedText
	switch d.Status {
	case api.StatusOnline:
		statusStyle = styles.SuccessText
	case api.StatusMaintenance:
		statusStyle = styles.WarningText
	}
	alertStyle := styles.FaintText
	if active > 0 {
		alertStyle = styles.DangerText
	}

	row := " " + styles.Text.Render(name) + statusStyle.Render(status) + alertStyle.Render(alertCol)
	if !compact {
		row += styles.MutedText.Render(padRight(truncate(optional(d.Location, reconcile.Placeholder), 20), 22)) +
			styles.Text.Render(padRight(ternary(d.WindowOpen, "open", "closed"), 9)) +
			styles.Text.Render(padRight(ternary(d.FanOn, "on", "off"), 6))
	}
	if wide {
		row += styles.MutedText.Render(formatSeen(d.ParsedLastSeen(), now))
	}
	return row
}
