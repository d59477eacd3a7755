package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bicodown/pkg/harvester"
	"bicodown/pkg/stats"
)

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the bubbletea model of one harvest run, fed with EventMsg
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	cancel context.CancelFunc

	label      string
	state      string
	page       int
	downloaded int
	total      int
	persisted  int
	skipped    int
	regions    map[string]*stats.RegionStat
	result     *harvester.Result
	startTime  time.Time

	width          int
	height         int
	showHelp       bool
	quitting       bool
	closed         bool
	logMessages    []LogMessage
	maxLogMessages int
	topRegions     int
}

// NewModel creates a model for the content called label. cancel is called
// when the user asks to stop; it may be nil.
func NewModel(label string, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return &Model{
		spinner:        s,
		progress:       p,
		cancel:         cancel,
		label:          label,
		state:          "starting",
		regions:        make(map[string]*stats.RegionStat),
		startTime:      time.Now(),
		maxLogMessages: 50,
		topRegions:     8,
	}
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Result is the Result of the Completed event, once seen
func (m *Model) Result() *harvester.Result {
	return m.result
}

// apply folds one harvester event into the model
func (m *Model) apply(ev harvester.Event) {
	m.downloaded = ev.Downloaded
	m.total = ev.Total

	switch ev.Type {
	case harvester.EventPageFetched:
		m.page = ev.Page
		m.state = "fetching"
	case harvester.EventCommentsPersisted:
		m.persisted += ev.Persisted
		m.AddLogMessage("INFO", fmt.Sprintf("page %d: %d comments written", ev.Page, ev.Persisted))
	case harvester.EventRegionUpdated:
		if ev.Region != nil {
			m.regions[ev.Region.Name] = ev.Region
		}
	case harvester.EventError:
		if ev.Page > 0 {
			m.skipped++
			m.AddLogMessage("WARN", fmt.Sprintf("page %d skipped: %v", ev.Page, ev.Err))
		} else {
			m.AddLogMessage("ERROR", ev.Err.Error())
		}
	case harvester.EventCompleted:
		m.result = ev.Result
		if ev.Result == nil {
			break
		}
		m.state = ev.Result.State.String()
		if len(ev.Result.Regions) > 0 {
			m.regions = ev.Result.Regions
		}
		switch {
		case ev.Result.NoComments:
			m.AddLogMessage("WARN", "no comments")
		case ev.Result.State == harvester.StateAborted:
			m.AddLogMessage("WARN", fmt.Sprintf("stopped at %d/%d", ev.Result.Downloaded, ev.Result.Total))
		default:
			m.AddLogMessage("SUCCESS", fmt.Sprintf("done: %d comments", ev.Result.Downloaded))
		}
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// TopRegions returns the busiest regions seen so far
func (m *Model) TopRegions() []*stats.RegionStat {
	ranked := stats.Ranked(m.regions)
	if len(ranked) > m.topRegions {
		ranked = ranked[:m.topRegions]
	}
	return ranked
}

// Percent is the share of the reported total already downloaded
func (m *Model) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	p := float64(m.downloaded) / float64(m.total)
	if p > 1 {
		p = 1
	}
	return p
}
