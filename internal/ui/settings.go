package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/airwatch-iot/gasmon/internal/api"
)

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldNumber
	fieldToggle
)

const (
	fieldName = iota
	fieldDescription
	fieldLocation
	fieldMQ2
	fieldMQ3
	fieldMQ5
	fieldMQ9
	fieldBuzzer
	fieldLED
	fieldNotify
	fieldCount
)

type settingsField struct {
	label   string
	kind    fieldKind
	initial string
	input   textinput.Model
}

// settingsModal edits device info and settings. Only fields that differ
// from the values it opened with are sent.
type settingsModal struct {
	deviceName string
	fields     []settingsField
	focus      int
	err        string
}

var _ Modal = (*settingsModal)(nil)

func newSettingsModal(device api.Device) *settingsModal {
	s := device.Settings
	if s == nil {
		s = &api.DeviceSettings{}
	}

	defs := []struct {
		label string
		kind  fieldKind
		value string
	}{
		fieldName:        {"Name", fieldText, device.Name},
		fieldDescription: {"Description", fieldText, optional(device.Description, "")},
		fieldLocation:    {"Location", fieldText, optional(device.Location, "")},
		fieldMQ2:         {"MQ2 limit (ppm)", fieldNumber, formatNumber(s.MQ2ThresholdPPM)},
		fieldMQ3:         {"MQ3 limit (ppm)", fieldNumber, formatNumber(s.MQ3ThresholdPPM)},
		fieldMQ5:         {"MQ5 limit (ppm)", fieldNumber, formatNumber(s.MQ5ThresholdPPM)},
		fieldMQ9:         {"MQ9 limit (ppm)", fieldNumber, formatNumber(s.MQ9ThresholdPPM)},
		fieldBuzzer:      {"Buzzer", fieldToggle, formatToggle(s.BuzzerEnabled)},
		fieldLED:         {"LED", fieldToggle, formatToggle(s.LEDEnabled)},
		fieldNotify:      {"Notify me", fieldToggle, formatToggle(s.NotifyUser)},
	}

	m := &settingsModal{deviceName: device.Name}
	for _, def := range defs {
		input := textinput.New()
		input.Prompt = ""
		input.CharLimit = 100
		input.Width = 28
		input.SetValue(def.value)
		switch def.kind {
		case fieldNumber:
			input.Placeholder = "not set"
			input.CharLimit = 12
		case fieldToggle:
			input.Placeholder = "on/off"
			input.CharLimit = 3
		}
		m.fields = append(m.fields, settingsField{
			label:   def.label,
			kind:    def.kind,
			initial: def.value,
			input:   input,
		})
	}
	return m
}

// Init focuses the first field.
func (m *settingsModal) Init() tea.Cmd {
	return m.fields[m.focus].input.Focus()
}

// Update implements Modal.
func (m *settingsModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, keys.Cancel):
			return m, nil, true
		case key.Matches(keyMsg, keys.Submit):
			info, settings, err := m.updates()
			if err != nil {
				m.err = err.Error()
				return m, nil, false
			}
			if info.Empty() && settings.Empty() {
				return m, nil, true
			}
			return m, func() tea.Msg {
				return settingsSubmitMsg{info: info, settings: settings}
			}, true
		case key.Matches(keyMsg, keys.NextField):
			return m, m.setFocus((m.focus + 1) % len(m.fields)), false
		case key.Matches(keyMsg, keys.PrevField):
			return m, m.setFocus((m.focus + len(m.fields) - 1) % len(m.fields)), false
		}
	}

	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd, false
}

func (m *settingsModal) setFocus(idx int) tea.Cmd {
	m.fields[m.focus].input.Blur()
	m.focus = idx
	return m.fields[m.focus].input.Focus()
}

// updates builds the two request bodies from the changed fields.
func (m *settingsModal) updates() (api.DeviceUpdate, api.SettingsUpdate, error) {
	var info api.DeviceUpdate
	var settings api.SettingsUpdate

	for i, f := range m.fields {
		value := strings.TrimSpace(f.input.Value())
		if value == strings.TrimSpace(f.initial) {
			continue
		}
		switch f.kind {
		case fieldText:
			v := value
			switch i {
			case fieldName:
				if v == "" {
					return info, settings, fmt.Errorf("%s cannot be empty", f.label)
				}
				info.Name = &v
			case fieldDescription:
				info.Description = &v
			case fieldLocation:
				info.Location = &v
			}
		case fieldNumber:
			if value == "" {
				// The backend has no way to clear a threshold.
				return info, settings, fmt.Errorf("%s cannot be cleared", f.label)
			}
			n, err := strconv.ParseFloat(value, 64)
			if err != nil || n <= 0 {
				return info, settings, fmt.Errorf("%s must be a positive number", f.label)
			}
			switch i {
			case fieldMQ2:
				settings.MQ2ThresholdPPM = &n
			case fieldMQ3:
				settings.MQ3ThresholdPPM = &n
			case fieldMQ5:
				settings.MQ5ThresholdPPM = &n
			case fieldMQ9:
				settings.MQ9ThresholdPPM = &n
			}
		case fieldToggle:
			on, err := parseToggle(value)
			if err != nil {
				return info, settings, fmt.Errorf("%s: %w", f.label, err)
			}
			switch i {
			case fieldBuzzer:
				settings.BuzzerEnabled = &on
			case fieldLED:
				settings.LEDEnabled = &on
			case fieldNotify:
				settings.NotifyUser = &on
			}
		}
	}
	return info, settings, nil
}

// View implements Modal.
func (m *settingsModal) View(theme Theme, width, height int) string {
	inputs := make([]formRow, len(m.fields))
	for i, f := range m.fields {
		inputs[i] = formRow{label: f.label, input: f.input.View()}
	}
	return renderForm(theme, width, height, "Settings · "+truncate(m.deviceName, 30), inputs, m.focus, m.err, "tab next · enter save · esc cancel")
}

type formRow struct {
	label string
	input string
}

// renderForm draws a bordered form centered on screen.
func renderForm(theme Theme, width, height int, title string, rows []formRow, focus int, errText, hint string) string {
	styles := theme.Styles()
	var b strings.Builder

	b.WriteString(styles.Text.Bold(true).Render(title))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 44)))
	b.WriteString("\n\n")

	labelStyle := lipgloss.NewStyle().Width(18)
	for i, r := range rows {
		label := labelStyle.Inherit(styles.MutedText).Render(r.label)
		if i == focus {
			label = labelStyle.Inherit(styles.AccentText.Bold(true)).Render(r.label)
		}
		b.WriteString(label)
		b.WriteString(r.input)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if errText != "" {
		b.WriteString(styles.DangerText.Render(errText))
		b.WriteString("\n")
	}
	b.WriteString(styles.FaintText.Render(hint))

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(52)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatToggle(on bool) string {
	return ternary(on, "on", "off")
}

func parseToggle(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "yes", "y", "true", "1":
		return true, nil
	case "off", "no", "n", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", value)
}
