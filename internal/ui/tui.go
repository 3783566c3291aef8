// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the relay status view
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a model polling status
func NewModel(name string, status StatusFunc) Model {
	return Model{
		name:    name,
		status:  status,
		started: time.Now(),
	}
}

// Run creates the program; the caller runs it and quits it on shutdown
func Run(name string, status StatusFunc) *tea.Program {
	return tea.NewProgram(NewModel(name, status), tea.WithAltScreen())
}
