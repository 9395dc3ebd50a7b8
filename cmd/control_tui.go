// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/hydrostat/internal/schedule"
	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries   = 100
	visibleLogLines = 8
	relayPanelWidth = 38

	// Readings older than this many report intervals are shown as stale
	staleIntervals = 3
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// controlActions are the operations the UI can trigger. They may block on
// the link, so they run as tea.Cmd.
type controlActions interface {
	Toggle(key string) (bool, error)
	ResetSchedule() error
	SyncTime() error
	RequestState() error
	ResendAll() error
}

// controlSetup carries what the model needs from the controller
type controlSetup struct {
	actions        controlActions
	devices        []relay.Device
	relayState     map[string]bool
	readings       map[string]sensor.Reading
	schema         hydrolink.Schema
	schedule       *schedule.Table
	reportInterval time.Duration
	stats          func() hydrolink.Counters
	clock          func() session.ClockInfo
	connInfo       func() string
}

// relayItem is one row in the relay list
type relayItem struct {
	device   relay.Device
	on       bool
	schedule string
}

// Implement list.Item interface
func (r relayItem) Title() string {
	return fmt.Sprintf("%-3s %s", onOff(r.on), r.device.DisplayName())
}

func (r relayItem) Description() string {
	return fmt.Sprintf("%s  %s", r.device.Code, r.schedule)
}

func (r relayItem) FilterValue() string { return r.device.Key }

type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	actions controlActions

	// Connection
	status   session.Status
	connInfo string
	infoFn   func() string
	spinner  spinner.Model

	// Relays
	devices    []relay.Device
	relayState map[string]bool
	schedule   *schedule.Table
	relayList  list.Model

	// Sensors
	schema         hydrolink.Schema
	readings       map[string]sensor.Reading
	lastSensors    time.Time
	reportInterval time.Duration

	// Link
	statsFn func() hydrolink.Counters
	clockFn func() session.ClockInfo
	stats   hydrolink.Counters
	clock   session.ClockInfo

	eventLog []eventLogEntry

	// UI state
	width    int
	height   int
	quitting bool
	now      func() time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type statusMsg struct {
	status session.Status
	info   string
}

type relayMsg relay.Change

type sensorsMsg map[string]sensor.Reading

type actionResultMsg struct {
	action string
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(setup controlSetup) controlModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	relayList := list.New([]list.Item{}, delegate, relayPanelWidth, 16)
	relayList.Title = "Relays"
	relayList.SetShowStatusBar(false)
	relayList.SetShowHelp(false)
	relayList.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := controlModel{
		actions:        setup.actions,
		status:         session.Disconnected,
		infoFn:         setup.connInfo,
		spinner:        sp,
		devices:        setup.devices,
		relayState:     make(map[string]bool),
		schedule:       setup.schedule,
		relayList:      relayList,
		schema:         setup.schema,
		readings:       make(map[string]sensor.Reading),
		reportInterval: setup.reportInterval,
		statsFn:        setup.stats,
		clockFn:        setup.clock,
		eventLog:       make([]eventLogEntry, 0),
		width:          80,
		height:         24,
		now:            time.Now,
	}
	for k, v := range setup.relayState {
		m.relayState[k] = v
	}
	m.applyReadings(setup.readings)
	if m.infoFn != nil {
		m.connInfo = m.infoFn()
	}
	m.updateRelayList()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, controlTickCmd())
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.refreshLink()
		// Re-render schedule markers as windows open and close
		m.updateRelayList()
		return m, controlTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.handleStatus(msg)

	case relayMsg:
		m.handleRelayChange(relay.Change(msg))

	case sensorsMsg:
		m.applyReadings(msg)

	case actionResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.addLogEntry(msg.action, false)
		}
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter", " ":
		item, ok := m.relayList.SelectedItem().(relayItem)
		if !ok {
			return m, nil
		}
		return m.runAction(fmt.Sprintf("Toggle %s", item.device.DisplayName()), func() error {
			_, err := m.actions.Toggle(item.device.Key)
			return err
		})

	case "r":
		return m.runAction("Reset schedule", m.actions.ResetSchedule)

	case "t":
		return m.runAction("Sync time", m.actions.SyncTime)

	case "g":
		return m.runAction("Request state", m.actions.RequestState)

	case "s":
		return m.runAction("Resend relay states", m.actions.ResendAll)

	case "up", "k", "down", "j", "home", "end", "pgup", "pgdown":
		var cmd tea.Cmd
		m.relayList, cmd = m.relayList.Update(msg)
		return m, cmd
	}

	return m, nil
}

// runAction refuses commands while the link is down, otherwise runs fn off
// the UI goroutine and reports the outcome as an actionResultMsg
func (m controlModel) runAction(name string, fn func() error) (tea.Model, tea.Cmd) {
	if m.status != session.Connected {
		m.addLogEntry(fmt.Sprintf("Cannot %s: not connected", strings.ToLower(name)), true)
		return m, nil
	}
	return m, func() tea.Msg {
		return actionResultMsg{action: name, err: fn()}
	}
}

func (m *controlModel) handleStatus(msg statusMsg) {
	prev := m.status
	m.status = msg.status
	if msg.info != "" {
		m.connInfo = msg.info
	}
	if prev == msg.status {
		return
	}
	switch msg.status {
	case session.Connected:
		m.addLogEntry(fmt.Sprintf("Connected to %s", m.connInfo), false)
	case session.Connecting:
		m.addLogEntry("Connecting...", false)
	case session.Disconnected:
		m.addLogEntry("Connection lost", true)
	}
}

func (m *controlModel) handleRelayChange(c relay.Change) {
	prev, known := m.relayState[c.Device.Key]
	m.relayState[c.Device.Key] = c.On
	m.updateRelayList()
	if known && prev == c.On && c.Source == relay.SourceRemote {
		return
	}
	m.addLogEntry(fmt.Sprintf("%s -> %s (%s)", c.Device.DisplayName(), onOff(c.On), c.Source), false)
}

func (m *controlModel) applyReadings(readings map[string]sensor.Reading) {
	for name, r := range readings {
		m.readings[name] = r
		if r.UpdatedAt.After(m.lastSensors) {
			m.lastSensors = r.UpdatedAt
		}
	}
}

func (m *controlModel) refreshLink() {
	if m.statsFn != nil {
		m.stats = m.statsFn()
	}
	if m.clockFn != nil {
		m.clock = m.clockFn()
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

// sensorsStale is true while disconnected or when no report arrived within
// staleIntervals report intervals
func (m controlModel) sensorsStale(now time.Time) bool {
	if m.status != session.Connected || m.lastSensors.IsZero() {
		return true
	}
	if m.reportInterval <= 0 {
		return false
	}
	return now.Sub(m.lastSensors) > staleIntervals*m.reportInterval
}

func (m *controlModel) updateRelayList() {
	now := m.now()
	items := make([]list.Item, len(m.devices))
	for i, d := range m.devices {
		items[i] = relayItem{
			device:   d,
			on:       m.relayState[d.Key],
			schedule: scheduleNote(m.schedule, d.Code, now),
		}
	}
	m.relayList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	h := m.height - 16
	if h < 6 {
		h = 6
	}
	m.relayList.SetSize(relayPanelWidth, h)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	now := m.now()

	// Header
	s.WriteString(titleStyle.Render("HYDROSTAT CONTROL"))
	s.WriteString(" ")
	s.WriteString(m.renderConnection())
	s.WriteString(headerStyle.Render(" | enter=toggle r=reset t=time g=state s=resend q=quit"))
	s.WriteString("\n\n")

	// Layout: left panel (relays) | right panel (sensors)
	relayPanel := focusedBoxStyle.Width(relayPanelWidth).Render(m.relayList.View())
	rightWidth := m.width - relayPanelWidth - 8
	if rightWidth < 30 {
		rightWidth = 30
	}
	sensorPanel := boxStyle.Width(rightWidth).Render(m.renderSensors(now))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, relayPanel, " ", sensorPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog())

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderConnection() string {
	switch m.status {
	case session.Connected:
		return valueStyle.Render("● CONNECTED") + headerStyle.Render(" "+m.connInfo)
	case session.Connecting:
		return m.spinner.View() + warningStyle.Render(" CONNECTING")
	default:
		return errorStyle.Render("○ DISCONNECTED")
	}
}

func (m controlModel) renderSensors(now time.Time) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("SENSORS"))

	stale := m.sensorsStale(now)
	if stale {
		s.WriteString(" ")
		switch {
		case m.lastSensors.IsZero():
			s.WriteString(warningStyle.Render("(no data)"))
		default:
			s.WriteString(warningStyle.Render(fmt.Sprintf("(stale, %s old)", now.Sub(m.lastSensors).Truncate(time.Second))))
		}
	}
	s.WriteString("\n")

	style := valueStyle
	if stale {
		style = headerStyle
	}
	for _, f := range m.schema.Fields() {
		value := "-"
		if r, ok := m.readings[f.Name]; ok {
			value = r.String()
		}
		s.WriteString(fmt.Sprintf("%-14s %s\n", f.Name, style.Render(value)))
	}

	s.WriteString("\n")
	s.WriteString(labelStyle.Render("CLOCK"))
	s.WriteString("\n")
	if m.clock.ReceivedAt.IsZero() {
		s.WriteString(headerStyle.Render("no TIME report yet"))
	} else {
		s.WriteString(fmt.Sprintf("device %s  drift %s",
			valueStyle.Render(m.clock.Device.String()),
			valueStyle.Render(m.clock.Drift.Truncate(time.Second).String())))
	}
	if !m.clock.LastSync.IsZero() {
		s.WriteString(headerStyle.Render(fmt.Sprintf("\nlast sync %s", m.clock.LastSync.Format("15:04:05"))))
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	var validPercent, errorPercent float64
	if m.stats.TotalLines > 0 {
		validPercent = float64(m.stats.ValidMessages) * 100.0 / float64(m.stats.TotalLines)
		errorPercent = float64(m.stats.DecodeErrors+m.stats.AnomalousLines) * 100.0 / float64(m.stats.TotalLines)
	}

	errText := valueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Lines:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalLines)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f lines/s", m.stats.LineRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return boxStyle.Width(m.width - 4).Render(s.String())
	}

	start := len(m.eventLog) - visibleLogLines
	if start < 0 {
		start = 0
	}
	for _, entry := range m.eventLog[start:] {
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}
