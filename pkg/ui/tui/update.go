package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"bicodown/pkg/harvester"
)

// EventMsg carries one harvester event into the program
type EventMsg harvester.Event

// EventsClosedMsg is sent once the event channel is closed
type EventsClosedMsg struct{}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width < 10 {
			m.progress.Width = 10
		}
		return m, nil

	case spinner.TickMsg:
		if m.closed {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(harvester.Event(msg))
		return m, nil

	case EventsClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input. The first q cancels the run and
// lets the remaining events drain; a second one quits at once.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c", "esc":
		if m.quitting || m.closed {
			return m, tea.Quit
		}
		m.quitting = true
		m.state = "stopping"
		m.AddLogMessage("WARN", "stopping after the current page, press q again to force")
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}
