package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	half := (m.width - 4) / 2
	if half < 30 {
		half = 30
	}

	sections := []string{
		m.renderHeader(),
		m.renderProgressPanel(m.width - 4),
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.renderRegionsPanel(half),
			"  ",
			m.renderLogsPanel(half),
		),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q stop • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderHeader() string {
	status := m.spinner.View() + " " + m.state
	if m.closed {
		status = successStyle.Render("✓ " + m.state)
	} else if m.quitting {
		status = warningStyle.Render("⏸ " + m.state)
	}
	return headerStyle.Render(fmt.Sprintf("BICODOWN  %s  %s", m.label, status))
}

// renderProgressPanel renders the comment progress and counters
func (m *Model) renderProgressPanel(width int) string {
	title := titleStyle.Render(" PROGRESS ")

	elapsed := time.Since(m.startTime)
	eta := "--"
	if m.downloaded > 0 && m.total > m.downloaded {
		perItem := elapsed / time.Duration(m.downloaded)
		eta = formatDuration(perItem * time.Duration(m.total-m.downloaded))
	}

	lines := []string{
		m.progress.ViewAs(m.Percent()),
		fmt.Sprintf("%s %s   %s %s   %s %s",
			statsLabelStyle.Render("Comments:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", m.downloaded, m.total)),
			statsLabelStyle.Render("Page:"), statsValueStyle.Render(fmt.Sprintf("%d", m.page)),
			statsLabelStyle.Render("Written:"), statsValueStyle.Render(fmt.Sprintf("%d", m.persisted)),
		),
		fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(elapsed)),
			statsLabelStyle.Render("ETA:"), statsValueStyle.Render(eta),
		),
	}
	if m.skipped > 0 {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("%d pages skipped", m.skipped)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, append([]string{title}, lines...)...),
	)
}

// renderRegionsPanel lists the busiest regions
func (m *Model) renderRegionsPanel(width int) string {
	title := titleStyle.Render(" TOP REGIONS ")

	top := m.TopRegions()
	if len(top) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("No comments yet")),
		)
	}

	rows := make([]string, 0, len(top))
	for _, r := range top {
		rows = append(rows, fmt.Sprintf("%s %s",
			statsLabelStyle.Render(padRight(r.Name, 8)),
			statsValueStyle.Render(fmt.Sprintf("%6d comments %5d users %7d likes", r.Comments, r.UserCount(), r.Likes)),
		))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, append([]string{title}, rows...)...),
	)
}

// renderLogsPanel renders the most recent log lines
func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(levelColor(log.Level)).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		message := log.Message
		if maxLen := width - 25; maxLen > 3 && len(message) > maxLen {
			message = message[:maxLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, dimStyle.Render(message)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp() string {
	help := `
  q/esc    - Stop after the current page (twice to force)
  ctrl+l   - Clear the log
  ?        - Toggle this help

  ` + successStyle.Render("Green") + `  finished   ` + warningStyle.Render("Orange") + `  skipped page   ` + errorStyle.Render("Red") + `  run error
`
	return panelStyle.Width(m.width - 4).Render(help)
}

// padRight pads s to n display cells
func padRight(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}

// formatDuration formats a duration as clock time
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
