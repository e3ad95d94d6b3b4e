package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/airwatch-iot/gasmon/internal/logtail"
	"github.com/airwatch-iot/gasmon/internal/prefs"
)

// logLevels is the cycle order of the level filter.
var logLevels = []zapcore.Level{
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
	zapcore.ErrorLevel,
}

func nextLogLevel(current zapcore.Level) zapcore.Level {
	for i, l := range logLevels {
		if l == current {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return zapcore.InfoLevel
}

// handleLogsKey processes keyboard input for the logs screen.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CycleLevel):
		m.logLevel = nextLogLevel(m.logLevel)
		level := m.logLevel.String()
		if err := prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.LogFilter = level }); err != nil {
			m.logger.Warn("save prefs failed", zap.Error(err))
		}
		return m, readLogsCmd(m.logFile)
	case key.Matches(msg, m.keys.Top):
		m.logViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

// updateLogViewport re-renders the log entries. When reload is set and the
// view was at the bottom, it follows the tail.
func (m *Model) updateLogViewport(reload bool) {
	if !m.ready {
		return
	}
	follow := !reload || m.logViewport.AtBottom() || m.logViewport.TotalLineCount() == 0
	m.logViewport.SetContent(m.renderLogContent())
	if reload && follow {
		m.logViewport.GotoBottom()
	}
}

func (m Model) renderLogContent() string {
	styles := m.theme.Styles()
	if m.logErr != nil {
		return styles.DangerText.Render(" Could not read "+m.logFile+": ") + styles.MutedText.Render(m.logErr.Error())
	}
	if len(m.logEntries) == 0 {
		return styles.MutedText.Render(" No log entries at " + strings.ToUpper(m.logLevel.String()) + " or above in " + m.logFile)
	}
	lines := make([]string, 0, len(m.logEntries))
	for _, e := range m.logEntries {
		lines = append(lines, m.renderLogLine(e))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLogLine(e logtail.Entry) string {
	styles := m.theme.Styles()

	levelStyle := styles.InfoText
	switch {
	case e.Level >= zapcore.ErrorLevel:
		levelStyle = styles.DangerText
	case e.Level == zapcore.WarnLevel:
		levelStyle = styles.WarningText
	case e.Level == zapcore.DebugLevel:
		levelStyle = styles.FaintText
	}

	ts := "        "
	if !e.Time.IsZero() {
		ts = e.Time.In(m.now().Location()).Format("15:04:05")
	}

	line := " " + styles.FaintText.Render(ts) + " " +
		levelStyle.Render(padRight(strings.ToUpper(e.Level.String()), 6)) +
		styles.Text.Render(e.Message)
	if len(e.Fields) > 0 {
		line += " " + styles.MutedText.Render(strings.Join(e.Fields, " "))
	}
	return line
}
