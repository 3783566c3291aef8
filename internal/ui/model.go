// ABOUTME: Bubbletea model for the relay status TUI
// ABOUTME: Polls a pipeline snapshot on a tick and renders it in a box
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/relay"
	tea "github.com/charmbracelet/bubbletea"
)

// RefreshInterval is how often the model polls its StatusFunc
const RefreshInterval = 500 * time.Millisecond

// StatusFunc returns the current pipeline snapshot
type StatusFunc func() relay.Status

// tickMsg triggers a status poll
type tickMsg time.Time

// StatusMsg replaces the displayed snapshot
type StatusMsg relay.Status

// Model represents the TUI state
type Model struct {
	name   string
	status StatusFunc

	snapshot relay.Status
	started  time.Time

	showDebug bool

	// Dimensions
	width  int
	height int
}

// Init schedules the first poll
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.status != nil {
			m.snapshot = m.status()
		}
		return m, tick()
	case StatusMsg:
		m.snapshot = relay.Status(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderReceiver())
	b.WriteString(m.renderSink())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	return fmt.Sprintf(`┌─ pcmrelay ───────────────────────────────────────────┐
│ Name:   %-45s │
│ Uptime: %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(m.name, 45), time.Since(m.started).Truncate(time.Second))
}

func (m Model) renderReceiver() string {
	r := m.snapshot.Receiver
	if !r.Connected {
		return "│ Upstream: waiting for sender                         │\n"
	}

	format := m.snapshot.Format
	if format == "" {
		format = "(not started)"
	}
	return fmt.Sprintf("│ Upstream: %-43s │\n"+
		"│ Format:   %-43s │\n"+
		"│ Frames:   %-10d Missed: %-24d │\n",
		truncate(r.Sender+" "+r.Remote, 43), truncate(format, 43), r.Frames, r.Missed)
}

func (m Model) renderSink() string {
	st := m.snapshot
	s := "├──────────────────────────────────────────────────────┤\n"
	s += fmt.Sprintf("│ Sink:   %-10s State: %-28s │\n", st.Sink, st.State)
	s += fmt.Sprintf("│ Queue:  [%s] %d/%d%-25s │\n",
		renderBar(st.QueueDepth, st.QueueCap, 10), st.QueueDepth, st.QueueCap, "")

	switch st.Sink {
	case "stream":
		s += fmt.Sprintf("│ Sessions: %-4d Buffered: %-27d │\n", st.Sessions, st.Buffered)
	default:
		s += fmt.Sprintf("│ Ratio:  %-8.4f Device queue: %-23d │\n", st.Ratio, st.DeviceDepth)
		s += fmt.Sprintf("│ Underruns: %-42d │\n", st.Underruns)
	}
	s += fmt.Sprintf("│ Evicted: %-44d │\n", st.Evictions)
	return s
}

func (m Model) renderDebug() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ DEBUG: %+v
`, m.snapshot)
}

func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := 0
	if max > 0 {
		filled = min((value*width)/max, width)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
