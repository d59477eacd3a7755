package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bicodown/pkg/harvester"
	"bicodown/pkg/stats"
)

func regionWith(name string, comments int) *stats.RegionStat {
	r := stats.NewRegionStat(name)
	for i := 0; i < comments; i++ {
		r.Add(name+string(rune('a'+i)), stats.SexFemale, 2, 4)
	}
	return r
}

func TestModelAppliesEvents(t *testing.T) {
	model := NewModel("BV1xx411c7mD", nil)

	model.Update(EventMsg{Type: harvester.EventPageFetched, Page: 1, Replies: 20, Total: 40})
	model.Update(EventMsg{Type: harvester.EventCommentsPersisted, Page: 1, Persisted: 20, Downloaded: 20, Total: 40})
	model.Update(EventMsg{Type: harvester.EventRegionUpdated, Region: regionWith("四川", 3), Downloaded: 20, Total: 40})
	model.Update(EventMsg{Type: harvester.EventRegionUpdated, Region: regionWith("江苏", 5), Downloaded: 20, Total: 40})
	model.Update(EventMsg{Type: harvester.EventError, Page: 2, Err: errors.New("code -412"), Downloaded: 20, Total: 40})

	if model.page != 1 {
		t.Errorf("Expected page 1, got %d", model.page)
	}
	if model.downloaded != 20 || model.total != 40 {
		t.Errorf("Expected 20/40, got %d/%d", model.downloaded, model.total)
	}
	if model.Percent() != 0.5 {
		t.Errorf("Expected 50%%, got %f", model.Percent())
	}
	if model.persisted != 20 {
		t.Errorf("Expected 20 written, got %d", model.persisted)
	}
	if model.skipped != 1 {
		t.Errorf("Expected 1 skipped page, got %d", model.skipped)
	}
	top := model.TopRegions()
	if len(top) != 2 || top[0].Name != "江苏" {
		t.Errorf("Expected 江苏 first, got %+v", top)
	}
	if len(model.logMessages) != 2 {
		t.Errorf("Expected 2 log messages, got %d", len(model.logMessages))
	}

	res := &harvester.Result{State: harvester.StateCompleted, Downloaded: 40, Total: 40}
	model.Update(EventMsg{Type: harvester.EventCompleted, Result: res, Downloaded: 40, Total: 40})
	if model.Result() != res {
		t.Error("Expected the completed result to be kept")
	}
	if model.state != "completed" {
		t.Errorf("Expected state completed, got %s", model.state)
	}

	_, cmd := model.Update(EventsClosedMsg{})
	if cmd == nil {
		t.Fatal("Expected a quit command once events are closed")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestQuitCancelsFirst(t *testing.T) {
	cancelled := 0
	model := NewModel("ep1", func() { cancelled++ })

	q := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	_, cmd := model.Update(q)
	if cmd != nil {
		t.Error("First q should not quit the program")
	}
	if cancelled != 1 {
		t.Errorf("Expected cancel to be called once, got %d", cancelled)
	}

	_, cmd = model.Update(q)
	if cmd == nil {
		t.Fatal("Second q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestLogMessagesAreCapped(t *testing.T) {
	model := NewModel("x", nil)
	for i := 0; i < 80; i++ {
		model.AddLogMessage("INFO", "line")
	}
	if len(model.logMessages) != model.maxLogMessages {
		t.Errorf("Expected %d messages, got %d", model.maxLogMessages, len(model.logMessages))
	}

	model.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(model.logMessages) != 0 {
		t.Errorf("Expected ctrl+l to clear the log, got %d", len(model.logMessages))
	}
}

func TestView(t *testing.T) {
	model := NewModel("BV1xx411c7mD", nil)
	if model.View() != "Initializing..." {
		t.Error("Expected placeholder before the first window size")
	}

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model.Update(EventMsg{Type: harvester.EventRegionUpdated, Region: regionWith("浙江", 2), Downloaded: 2, Total: 10})

	view := model.View()
	for _, want := range []string{"BV1xx411c7mD", "TOP REGIONS", "浙江", "2/10"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{45 * time.Second, "00:45"},
		{5*time.Minute + 3*time.Second, "05:03"},
		{2*time.Hour + time.Minute, "02:01:00"},
		{-time.Second, "00:00"},
	}

	for _, test := range tests {
		if got := formatDuration(test.d); got != test.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", test.d, got, test.expected)
		}
	}
}
