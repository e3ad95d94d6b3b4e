package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/logtail"
	"github.com/airwatch-iot/gasmon/internal/prefs"
	"github.com/airwatch-iot/gasmon/internal/session"
	"github.com/airwatch-iot/gasmon/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewDevices View = iota
	ViewDetail
	ViewNotifications
	ViewLogs
)

// ListSession is a screen session that can be refreshed on demand.
type ListSession interface {
	session.Session
	Refresh(ctx context.Context) error
}

// DeviceListSession drives the device list.
type DeviceListSession interface {
	ListSession
	CreateDevice(ctx context.Context, input api.DeviceCreate) error
}

// DetailSession drives the device detail screen.
type DetailSession interface {
	ListSession
	DeviceID() int64
	ToggleActuator(ctx context.Context, actuator api.Actuator) error
	ResolveAlert(ctx context.Context, alertID int64) error
	Calibrate(ctx context.Context) error
	SaveSettings(ctx context.Context, info api.DeviceUpdate, settings api.SettingsUpdate) error
}

// NotificationSession drives the notifications screen.
type NotificationSession interface {
	ListSession
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	ResolveAlert(ctx context.Context, alertID int64) error
}

// Options configures the UI.
type Options struct {
	Context       context.Context
	Store         *state.Store
	Devices       DeviceListSession
	Notifications NotificationSession
	// OpenDetail builds the session for one device. Called each time the
	// detail screen is entered.
	OpenDetail func(id int64) DetailSession
	LogFile    string
	PollTick   time.Duration
	ThemeName  string
	// LogFilter is the initial minimum level of the logs screen.
	LogFilter string
	PrefsPath string
	Logger    *zap.Logger
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx           context.Context
	store         *state.Store
	devices       DeviceListSession
	notifications NotificationSession
	openDetail    func(id int64) DetailSession
	logFile       string
	prefsPath     string
	pollTick      time.Duration
	logger        *zap.Logger
	keys          keyMap
	now           func() time.Time

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool

	// Data state
	snapshot    state.Snapshot
	lastUpdated time.Time

	// Devices state
	selectedDevice int

	// Detail state
	detail         DetailSession
	detailViewport viewport.Model

	// Notifications state
	selectedNotification int

	// Log state
	logViewport viewport.Model
	logLevel    zapcore.Level
	logEntries  []logtail.Entry
	logErr      error

	// Overlays
	showHelp bool
	modal    Modal
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = DefaultUIInterval
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := opts.Store
	if store == nil {
		store = &state.Store{}
	}

	logLevel := zapcore.InfoLevel
	if opts.LogFilter != "" {
		if lvl, err := zapcore.ParseLevel(opts.LogFilter); err == nil {
			logLevel = lvl
		}
	}

	return Model{
		ctx:           ctx,
		store:         store,
		devices:       opts.Devices,
		notifications: opts.Notifications,
		openDetail:    opts.OpenDetail,
		logFile:       opts.LogFile,
		prefsPath:     prefsPath,
		pollTick:      pollTick,
		logger:        logger,
		keys:          DefaultKeyMap(),
		now:           time.Now,
		theme:         GetTheme(opts.ThemeName),
		currentView:   ViewDevices,
		logLevel:      logLevel,
	}
}

// Init implements tea.Model. The device list is the first screen, so its
// session gains focus here.
func (m Model) Init() tea.Cmd {
	if m.devices != nil {
		m.devices.OnActivate(m.ctx)
	}
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
		fetchSnapshotCmd(m.store),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detailViewport = viewport.New(msg.Width, m.contentHeight())
			m.logViewport = viewport.New(msg.Width, m.contentHeight())
		}
		m.ready = true
		m.resizeViewports()
		m.updateDetailViewport()
		m.updateLogViewport(false)
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = m.now()
		m.clampSelections()
		if m.detailGone() {
			m = m.switchView(ViewDevices)
			return m, fetchSnapshotCmd(m.store)
		}
		m.updateDetailViewport()
		return m, nil

	case logsMsg:
		m.logErr = msg.err
		if msg.err == nil {
			m.logEntries = logtail.ParseAll(msg.lines, m.logLevel)
		}
		m.updateLogViewport(true)
		return m, nil

	case actionDoneMsg:
		// Failures are already on the status line; ErrInactive means the
		// screen changed before the action ran.
		if msg.err != nil && !errors.Is(msg.err, session.ErrInactive) {
			m.logger.Warn("action failed", zap.String("action", msg.action), zap.Error(msg.err))
		}
		return m, fetchSnapshotCmd(m.store)

	case settingsSubmitMsg:
		m.modal = nil
		if m.detail == nil {
			return m, nil
		}
		detail := m.detail
		return m, m.actionCmd("save settings", func(ctx context.Context) error {
			return detail.SaveSettings(ctx, msg.info, msg.settings)
		})

	case createDeviceMsg:
		m.modal = nil
		if m.devices == nil {
			return m, nil
		}
		devices := m.devices
		return m, m.actionCmd("add device", func(ctx context.Context) error {
			return devices.CreateDevice(ctx, msg.input)
		})
	}

	if m.modal != nil {
		modal, cmd, done := m.modal.Update(msg, m.keys)
		m.modal = modal
		if done {
			m.modal = nil
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}

	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.modal != nil {
		modal, cmd, done := m.modal.Update(msg, m.keys)
		m.modal = modal
		if done {
			m.modal = nil
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.deactivateCurrent()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		name := m.theme.Name
		if err := prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.Theme = name }); err != nil {
			m.logger.Warn("save prefs failed", zap.Error(err))
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.currentView != ViewDevices {
			m = m.switchView(ViewDevices)
			return m, fetchSnapshotCmd(m.store)
		}
		return m, nil

	case key.Matches(msg, m.keys.ViewDevices):
		m = m.switchView(ViewDevices)
		return m, fetchSnapshotCmd(m.store)

	case key.Matches(msg, m.keys.ViewNotifications):
		m = m.switchView(ViewNotifications)
		return m, fetchSnapshotCmd(m.store)

	case key.Matches(msg, m.keys.ViewLogs):
		m = m.switchView(ViewLogs)
		return m, readLogsCmd(m.logFile)

	case key.Matches(msg, m.keys.Refresh):
		if s := m.currentSession(); s != nil {
			return m, m.actionCmd("refresh", s.Refresh)
		}
		if m.currentView == ViewLogs {
			return m, readLogsCmd(m.logFile)
		}
		return m, nil
	}

	switch m.currentView {
	case ViewDevices:
		return m.handleDevicesKey(msg)
	case ViewDetail:
		return m.handleDetailKey(msg)
	case ViewNotifications:
		return m.handleNotificationsKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

// switchView moves focus to v. The session of the screen being left is torn
// down before the next one starts.
func (m Model) switchView(v View) Model {
	if v == m.currentView && v != ViewDetail {
		return m
	}
	m.deactivateCurrent()
	m.currentView = v

	switch v {
	case ViewDevices:
		if m.devices != nil {
			m.devices.OnActivate(m.ctx)
		}
	case ViewNotifications:
		m.selectedNotification = 0
		if m.notifications != nil {
			m.notifications.OnActivate(m.ctx)
		}
	case ViewDetail:
		device, ok := m.selectedDeviceItem()
		if !ok || m.openDetail == nil {
			m.currentView = ViewDevices
			if m.devices != nil {
				m.devices.OnActivate(m.ctx)
			}
			return m
		}
		m.detail = m.openDetail(device.ID)
		m.detail.OnActivate(m.ctx)
		m.detailViewport.GotoTop()
	case ViewLogs:
		m.logViewport.GotoBottom()
	}
	return m
}

// deactivateCurrent tears down the session of the focused screen.
func (m *Model) deactivateCurrent() {
	switch m.currentView {
	case ViewDevices:
		if m.devices != nil {
			m.devices.OnDeactivate()
		}
	case ViewNotifications:
		if m.notifications != nil {
			m.notifications.OnDeactivate()
		}
	case ViewDetail:
		if m.detail != nil {
			m.detail.OnDeactivate()
			m.detail = nil
		}
	}
}

// currentSession returns the session behind the focused screen, if any.
func (m Model) currentSession() ListSession {
	switch m.currentView {
	case ViewDevices:
		if m.devices != nil {
			return m.devices
		}
	case ViewNotifications:
		if m.notifications != nil {
			return m.notifications
		}
	case ViewDetail:
		if m.detail != nil {
			return m.detail
		}
	}
	return nil
}

// detailGone reports whether the open device was deleted on the backend.
func (m Model) detailGone() bool {
	if m.currentView != ViewDetail || m.detail == nil || !m.snapshot.HasDetail {
		return false
	}
	d := m.snapshot.Detail
	return d.NotFound && d.DeviceID == m.detail.DeviceID()
}

// handleTick processes the refresh tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{fetchSnapshotCmd(m.store)}

	if m.currentView == ViewLogs {
		cmds = append(cmds, readLogsCmd(m.logFile))
	}

	// Schedule next tick
	cmds = append(cmds, tickCmd(m.pollTick))

	return m, tea.Batch(cmds...)
}

// actionCmd runs fn off the update loop and reports back with actionDoneMsg.
func (m Model) actionCmd(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

// contentHeight is the height left for the active screen.
func (m Model) contentHeight() int {
	// header, command bar and status line
	return maxInt(1, m.height-3)
}

func (m *Model) resizeViewports() {
	m.detailViewport.Width = m.width
	m.detailViewport.Height = m.contentHeight()
	m.logViewport.Width = m.width
	m.logViewport.Height = m.contentHeight()
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	b.WriteString(m.renderContent())
	b.WriteString("\n")

	b.WriteString(m.renderStatusLine())

	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDevices:
		return m.renderDevices()
	case ViewDetail:
		return m.detailViewport.View()
	case ViewNotifications:
		return m.renderNotifications()
	case ViewLogs:
		return m.logViewport.View()
	default:
		return ""
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type logsMsg struct {
	lines []string
	err   error
}

type actionDoneMsg struct {
	action string
	err    error
}

type settingsSubmitMsg struct {
	info     api.DeviceUpdate
	settings api.SettingsUpdate
}

type createDeviceMsg struct {
	input api.DeviceCreate
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func readLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		lines, err := logtail.Read(path, LogBufferLimit)
		return logsMsg{lines: lines, err: err}
	}
}

// Run starts the Bubble Tea program. The focused session is torn down when
// the program exits.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.deactivateCurrent()
	}
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
