package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Back       key.Binding
	Refresh    key.Binding

	// View switching
	ViewDevices       key.Binding
	ViewNotifications key.Binding
	ViewLogs          key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
	Open   key.Binding

	// Device list actions
	AddDevice key.Binding

	// Device actions
	ToggleWindow key.Binding
	ToggleFan    key.Binding
	ResolveAlert key.Binding
	Calibrate    key.Binding
	Settings     key.Binding

	// Notification actions
	MarkRead    key.Binding
	MarkAllRead key.Binding

	// Logs
	CycleLevel key.Binding

	// Forms
	NextField key.Binding
	PrevField key.Binding
	Submit    key.Binding
	Cancel    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back to devices"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Refresh now"),
		),

		ViewDevices: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Devices"),
		),
		ViewNotifications: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Notifications"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logs"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open device"),
		),

		AddDevice: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Add device"),
		),

		ToggleWindow: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "Open/close window"),
		),
		ToggleFan: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Fan on/off"),
		),
		ResolveAlert: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Resolve first alert"),
		),
		Calibrate: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Calibrate sensors"),
		),
		Settings: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Edit settings"),
		),

		MarkRead: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Mark read"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "Mark all read"),
		),

		CycleLevel: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "Cycle level filter"),
		),

		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "Previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Save"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Cancel"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewDevices, k.ViewNotifications, k.ViewLogs, k.Back},
		{k.Up, k.Down, k.Top, k.Bottom, k.Open, k.AddDevice},
		{k.ToggleWindow, k.ToggleFan, k.ResolveAlert, k.Calibrate, k.Settings, k.Refresh},
		{k.MarkRead, k.MarkAllRead, k.ResolveAlert},
		{k.CycleLevel},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
