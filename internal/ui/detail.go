package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
)

// handleDetailKey processes keyboard input for the device detail screen.
func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detail == nil {
		return m, nil
	}
	detail := m.detail
	view := m.detailView()

	switch {
	case key.Matches(msg, m.keys.ToggleWindow):
		return m, m.actionCmd("toggle window", func(ctx context.Context) error {
			return detail.ToggleActuator(ctx, api.ActuatorWindow)
		})

	case key.Matches(msg, m.keys.ToggleFan):
		return m, m.actionCmd("toggle fan", func(ctx context.Context) error {
			return detail.ToggleActuator(ctx, api.ActuatorFan)
		})

	case key.Matches(msg, m.keys.ResolveAlert):
		alerts := view.ActiveAlerts()
		if len(alerts) == 0 {
			return m, nil
		}
		id := alerts[0].ID
		return m, m.actionCmd("resolve alert", func(ctx context.Context) error {
			return detail.ResolveAlert(ctx, id)
		})

	case key.Matches(msg, m.keys.Calibrate):
		return m, m.actionCmd("calibrate", detail.Calibrate)

	case key.Matches(msg, m.keys.Settings):
		if !view.HasSnapshot {
			return m, nil
		}
		modal := newSettingsModal(view.Device)
		m.modal = modal
		return m, modal.Init()
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

// detailView returns the merged view for the open device, or a zero view
// while the first snapshot is loading.
func (m Model) detailView() reconcile.DeviceView {
	if m.detail == nil || !m.snapshot.HasDetail || m.snapshot.Detail.DeviceID != m.detail.DeviceID() {
		return reconcile.DeviceView{}
	}
	return m.snapshot.Detail.View
}

func (m *Model) updateDetailViewport() {
	if !m.ready || m.currentView != ViewDetail {
		return
	}
	m.detailViewport.SetContent(m.renderDetailContent(m.detailView()))
}

// renderDetailContent renders the merged device view.
func (m Model) renderDetailContent(view reconcile.DeviceView) string {
	styles := m.theme.Styles()
	if !view.HasSnapshot {
		return styles.MutedText.Render(" Loading device...")
	}
	d := view.Device
	var b strings.Builder

	// Identity
	b.WriteString(" ")
	b.WriteString(styles.Text.Bold(true).Render(d.Name))
	b.WriteString("  ")
	b.WriteString(styles.StatusStyle(string(d.Status)).Render(string(d.Status)))
	b.WriteString("\n")
	b.WriteString(" ")
	b.WriteString(styles.MutedText.Render(fmt.Sprintf("key %s · %s · seen %s",
		d.DeviceKey,
		optional(d.Location, "no location"),
		formatSeen(d.ParsedLastSeen(), m.now()))))
	b.WriteString("\n")
	if desc := optional(d.Description, ""); desc != "" {
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(truncate(desc, maxInt(10, m.width-2))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Readings
	b.WriteString(" ")
	b.WriteString(styles.AccentText.Bold(true).Render("Readings"))
	if !view.HasReading {
		b.WriteString(styles.MutedText.Render("  no data yet"))
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(" " + padRight("SENSOR", 8) + padRight("GAS", 18) + padRight("PPM", 12) + padRight("LIMIT", 12) + "SOURCE"))
	b.WriteString("\n")
	for _, ch := range view.Channels {
		b.WriteString(m.renderChannelRow(ch))
		b.WriteString("\n")
	}
	b.WriteString(" ")
	b.WriteString(styles.Text.Render(fmt.Sprintf("Temperature %s °C   Humidity %s %%",
		view.Temperature.Format(1), view.Humidity.Format(1))))
	b.WriteString("\n\n")

	// Actuators
	b.WriteString(" ")
	b.WriteString(styles.AccentText.Bold(true).Render("Actuators"))
	b.WriteString("\n ")
	b.WriteString(styles.Text.Render("Window "))
	b.WriteString(onOff(styles, view.WindowOpen, "open", "closed"))
	b.WriteString(styles.Text.Render("   Fan "))
	b.WriteString(onOff(styles, view.FanOn, "on", "off"))
	b.WriteString("\n\n")

	// Alerts
	alerts := view.ActiveAlerts()
	b.WriteString(" ")
	b.WriteString(styles.AccentText.Bold(true).Render(fmt.Sprintf("Active alerts (%d)", len(alerts))))
	b.WriteString("\n")
	if len(alerts) == 0 {
		b.WriteString(" ")
		b.WriteString(styles.MutedText.Render("None"))
		b.WriteString("\n")
	}
	for _, a := range alerts {
		b.WriteString(" ")
		b.WriteString(styles.StatusStyle(string(a.Severity)).Render(string(a.Severity)))
		b.WriteString(" ")
		b.WriteString(styles.Text.Render(truncate(a.Message, maxInt(10, m.width-30))))
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(formatSeen(a.ParsedCreatedAt(), m.now())))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderChannelRow(ch reconcile.ChannelView) string {
	styles := m.theme.Styles()

	limit := reconcile.Placeholder
	if ch.Configured {
		limit = formatNumber(&ch.Threshold)
	}
	source := ""
	if ch.Reading.Present() {
		source = ch.Reading.Source.String()
	}

	valueStyle := styles.Text
	if ch.Exceeded {
		valueStyle = styles.DangerText
	}

	row := " " + styles.Text.Render(padRight(ch.Channel.Label(), 8)) +
		styles.MutedText.Render(padRight(ch.Channel.Gas(), 18)) +
		valueStyle.Render(padRight(ch.Reading.Format(1), 12)) +
		styles.MutedText.Render(padRight(limit, 12)) +
		styles.FaintText.Render(source)
	if ch.Exceeded {
		row += " " + styles.DangerText.Render("ABOVE LIMIT")
	}
	return row
}

func onOff(styles Styles, on bool, yes, no string) string {
	if on {
		return styles.SuccessText.Render(yes)
	}
	return styles.MutedText.Render(no)
}
