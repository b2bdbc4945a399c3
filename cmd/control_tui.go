// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/webcontrol/pkg/desk"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlRequestTimeout = 5 * time.Second
	stepIncrement         = 250
	minStep               = 250
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventLogEntry is one line of the event log
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	dispatcher  *desk.Dispatcher
	deskName    string
	heightRange desk.HeightRange

	// Link state
	connInfo  string
	linkUp    bool
	connected func() bool // polled on tick, nil when always attached

	// Control
	step        uint16
	lastPercent int // -1 until a percent request succeeds
	lastRaw     int // -1 until a height request succeeds
	pending     int
	input       textinput.Model
	inputActive bool

	// Event log
	eventLog      []eventLogEntry
	maxLogEntries int

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type replyMsg struct {
	label string
	reply desk.Reply
	err   error
}

type linkStateMsg struct {
	up   bool
	info string
}

type frameSentMsg struct {
	frame []byte
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(d *desk.Dispatcher, deskName, connInfo string, step uint16) controlModel {
	ti := textinput.New()
	ti.Placeholder = `{"height": {"percent": 40}}`
	ti.CharLimit = 256
	ti.Width = 60

	hr := desk.DefaultHeightRange
	if ctrl, ok := d.Controller(deskName); ok {
		hr = ctrl.HeightRange()
	}
	if step < minStep {
		step = minStep
	}

	return controlModel{
		dispatcher:    d,
		deskName:      deskName,
		heightRange:   hr,
		connInfo:      connInfo,
		step:          step,
		lastPercent:   -1,
		lastRaw:       -1,
		input:         ti,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
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

	case controlTickMsg:
		if m.connected != nil {
			m.linkUp = m.connected()
		}
		return m, controlTickCmd()

	case replyMsg:
		m.handleReply(msg)

	case linkStateMsg:
		m.linkUp = msg.up
		if msg.up {
			m.connInfo = msg.info
			m.addLogEntry("Connected: "+msg.info, false)
		} else {
			m.addLogEntry("Connection lost, reconnecting", true)
		}

	case frameSentMsg:
		m.addLogEntry("Frame "+describeFrame(msg.frame), false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputActive {
		return m.handleInputKey(msg)
	}

	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		return m.send(fmt.Sprintf("move up %d ms", m.step), moveRequest(m.step, desk.DirectionUp))

	case "down", "j":
		return m.send(fmt.Sprintf("move down %d ms", m.step), moveRequest(m.step, desk.DirectionDown))

	case "+", "=":
		if m.step <= math.MaxUint16-stepIncrement {
			m.step += stepIncrement
		}
		return m, nil

	case "-", "_":
		if m.step >= minStep+stepIncrement {
			m.step -= stepIncrement
		}
		return m, nil

	case "m":
		return m.send("100%", percentRequest(100))

	case "/":
		m.inputActive = true
		m.input.SetValue("")
		return m, m.input.Focus()
	}

	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		p := int(key[0]-'0') * 10
		return m.send(fmt.Sprintf("%d%%", p), percentRequest(p))
	}

	return m, nil
}

func (m controlModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.inputActive = false
		m.input.Blur()
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.inputActive = false
		m.input.Blur()
		if text == "" {
			return m, nil
		}
		req, err := decodeRequest(text)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		return m.send(text, req)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send dispatches req in the background and reports the reply as a replyMsg
func (m controlModel) send(label string, req interface{}) (tea.Model, tea.Cmd) {
	if !m.linkUp {
		m.addLogEntry("Cannot send "+label+": link is down", true)
		return m, nil
	}
	m.pending++
	d, name := m.dispatcher, m.deskName
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
		defer cancel()
		reply, err := d.Handle(ctx, name, req)
		return replyMsg{label: label, reply: reply, err: err}
	}
}

func (m *controlModel) handleReply(msg replyMsg) {
	if m.pending > 0 {
		m.pending--
	}
	if !msg.reply.OK() {
		text := fmt.Sprintf("%s: %s", msg.label, msg.reply.Reason)
		if msg.reply.Detail != "" {
			text += " (" + msg.reply.Detail + ")"
		}
		m.addLogEntry(text, true)
		if msg.err != nil {
			m.linkUp = false
		}
		return
	}

	if p, ok := msg.reply.Fields["percent"].(int); ok {
		m.lastPercent = p
	}
	if raw, ok := msg.reply.Fields["raw_height"].(uint16); ok {
		m.lastRaw = int(raw)
	}
	m.addLogEntry(msg.label+": ok", false)
}

func moveRequest(durationMs uint16, dir desk.Direction) map[string]interface{} {
	return map[string]interface{}{"height": map[string]interface{}{
		"move": map[string]interface{}{"duration": int(durationMs), "direction": dir.String()},
	}}
}

func percentRequest(p int) map[string]interface{} {
	return map[string]interface{}{"height": map[string]interface{}{"percent": p}}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("WEBCONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if !m.linkUp {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, "q=quit /=request")))
	s.WriteString("\n\n")

	s.WriteString(m.renderDeskPanel(statsLabelStyle, statsValueStyle, headerStyle, boxStyle))
	s.WriteString("\n")

	if m.inputActive {
		s.WriteString(boxStyle.Width(m.width - 4).Render(statsLabelStyle.Render("REQUEST ") + m.input.View()))
		s.WriteString("\n")
	}

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
	return s.String()
}

func (m controlModel) renderDeskPanel(labelStyle, valueStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	row := func(label, value string) {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), valueStyle.Render(value)))
	}

	row("Desk:", m.deskName)
	row("Range:", fmt.Sprintf("%d..%d raw", m.heightRange.MinRaw, m.heightRange.MaxRaw))
	if m.lastPercent >= 0 {
		row("Last set:", fmt.Sprintf("%d%% (raw %d)", m.lastPercent, m.lastRaw))
	} else if m.lastRaw >= 0 {
		row("Last set:", fmt.Sprintf("raw %d", m.lastRaw))
	} else {
		row("Last set:", "-")
	}
	row("Step:", fmt.Sprintf("%d ms", m.step))
	if m.pending > 0 {
		row("Pending:", fmt.Sprintf("%d", m.pending))
	}
	s.WriteString(headerStyle.Render("up/down=move  +/-=step  0-9=percent  m=100%"))

	return boxStyle.Width(m.width - 4).Render(s.String())
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := m.height - 16
	if logHeight < 3 {
		logHeight = 3
	}
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}
