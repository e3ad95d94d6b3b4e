package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/airwatch-iot/gasmon/internal/api"
)

const (
	newDeviceName = iota
	newDeviceLocation
	newDeviceDescription
)

// newDeviceModal collects the fields of a device registration.
type newDeviceModal struct {
	labels []string
	inputs []textinput.Model
	focus  int
	err    string
}

var _ Modal = (*newDeviceModal)(nil)

func newNewDeviceModal() *newDeviceModal {
	m := &newDeviceModal{labels: []string{"Name", "Location", "Description"}}
	limits := []int{100, 200, 500}
	for i := range m.labels {
		input := textinput.New()
		input.Prompt = ""
		input.CharLimit = limits[i]
		input.Width = 28
		if i != newDeviceName {
			input.Placeholder = "optional"
		}
		m.inputs = append(m.inputs, input)
	}
	return m
}

// Init focuses the name field.
func (m *newDeviceModal) Init() tea.Cmd {
	return m.inputs[m.focus].Focus()
}

// Update implements Modal.
func (m *newDeviceModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, keys.Cancel):
			return m, nil, true
		case key.Matches(keyMsg, keys.Submit):
			input := m.input()
			if input.Name == "" {
				m.err = "Name cannot be empty"
				return m, nil, false
			}
			return m, func() tea.Msg { return createDeviceMsg{input: input} }, true
		case key.Matches(keyMsg, keys.NextField):
			return m, m.setFocus((m.focus + 1) % len(m.inputs)), false
		case key.Matches(keyMsg, keys.PrevField):
			return m, m.setFocus((m.focus + len(m.inputs) - 1) % len(m.inputs)), false
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd, false
}

func (m *newDeviceModal) setFocus(idx int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = idx
	return m.inputs[m.focus].Focus()
}

func (m *newDeviceModal) input() api.DeviceCreate {
	return api.DeviceCreate{
		Name:        strings.TrimSpace(m.inputs[newDeviceName].Value()),
		Location:    strings.TrimSpace(m.inputs[newDeviceLocation].Value()),
		Description: strings.TrimSpace(m.inputs[newDeviceDescription].Value()),
	}
}

// View implements Modal.
func (m *newDeviceModal) View(theme Theme, width, height int) string {
	rows := make([]formRow, len(m.inputs))
	for i, in := range m.inputs {
		rows[i] = formRow{label: m.labels[i], input: in.View()}
	}
	return renderForm(theme, width, height, "New device", rows, m.focus, m.err, "tab next · enter add · esc cancel")
}
