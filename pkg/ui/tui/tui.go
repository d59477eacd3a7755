package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"bicodown/pkg/harvester"
)

// TUI is the full-screen display of a harvest run
type TUI struct {
	label   string
	cancel  context.CancelFunc
	options []tea.ProgramOption
}

// NewTUI creates a TUI for the content called label. cancel stops the
// harvest when the user quits.
func NewTUI(label string, cancel context.CancelFunc, options ...tea.ProgramOption) *TUI {
	if len(options) == 0 {
		options = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{label: label, cancel: cancel, options: options}
}

// Run forwards events to the program until the channel is closed. The
// channel is always drained, also when the program ends first.
func (t *TUI) Run(events <-chan harvester.Event) (*harvester.Result, error) {
	program := tea.NewProgram(NewModel(t.label, t.cancel), t.options...)

	var result *harvester.Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == harvester.EventCompleted {
				result = ev.Result
			}
			program.Send(EventMsg(ev))
		}
		program.Send(EventsClosedMsg{})
	}()

	_, err := program.Run()
	if t.cancel != nil {
		t.cancel()
	}
	<-done
	return result, err
}
