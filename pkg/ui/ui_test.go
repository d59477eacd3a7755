package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bicodown/pkg/harvester"
	"bicodown/pkg/stats"
)

func TestBar(t *testing.T) {
	assert.Equal(t, strings.Repeat(ProgressEmpty, 10), Bar(0, 0, 10))
	assert.Equal(t, strings.Repeat(ProgressBar, 5)+strings.Repeat(ProgressEmpty, 5), Bar(5, 10, 10))
	assert.Equal(t, strings.Repeat(ProgressBar, 10), Bar(30, 10, 10))
	assert.Empty(t, Bar(1, 2, 0))
}

func TestPercentAndETA(t *testing.T) {
	assert.Equal(t, 0.0, Percent(3, 0))
	assert.Equal(t, 50.0, Percent(5, 10))
	assert.Equal(t, 100.0, Percent(12, 10))

	eta, ok := ETA(10, 30, 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, 20*time.Second, eta)

	_, ok = ETA(0, 30, time.Second)
	assert.False(t, ok)
	_, ok = ETA(30, 30, time.Second)
	assert.False(t, ok)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m", FormatDuration(61*time.Minute))
	assert.Equal(t, "0s", FormatDuration(-time.Second))
}

func region(name string, comments int) *stats.RegionStat {
	r := stats.NewRegionStat(name)
	for i := 0; i < comments; i++ {
		r.Add(name+string(rune('a'+i)), stats.SexMale, 1, 3)
	}
	return r
}

func TestProgressDisplayRun(t *testing.T) {
	var buf bytes.Buffer
	display := NewProgressDisplay(&buf, "BV1xx411c7mD", false)

	events := make(chan harvester.Event, 8)
	events <- harvester.Event{Type: harvester.EventPageFetched, Page: 1, Replies: 20, Total: 40}
	events <- harvester.Event{Type: harvester.EventCommentsPersisted, Page: 1, Persisted: 20, Downloaded: 20, Total: 40}
	events <- harvester.Event{Type: harvester.EventRegionUpdated, Page: 1, Region: region("广东", 2)}
	events <- harvester.Event{Type: harvester.EventError, Page: 2, Err: errors.New("code -412")}
	events <- harvester.Event{Type: harvester.EventCompleted, Downloaded: 20, Total: 40, Result: &harvester.Result{
		Title:        "demo",
		State:        harvester.StateCompleted,
		Total:        40,
		Downloaded:   20,
		Persisted:    20,
		SkippedPages: 1,
		Regions: map[string]*stats.RegionStat{
			"广东": region("广东", 3),
			"北京": region("北京", 5),
		},
	}}
	close(events)

	res, err := display.Run(events)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 20, res.Downloaded)

	out := buf.String()
	assert.Contains(t, out, "20/40")
	assert.Contains(t, out, "page 2: code -412")
	assert.Contains(t, out, "1 pages skipped")
	assert.Less(t, strings.Index(out, "北京"), strings.Index(out, "广东"), "busiest region first")
}

func TestProgressDisplayNoComments(t *testing.T) {
	var buf bytes.Buffer
	display := NewProgressDisplay(&buf, "ep1", true)

	res := display.Handle(harvester.Event{Type: harvester.EventCompleted, Result: &harvester.Result{NoComments: true}})
	require.NotNil(t, res)
	assert.Contains(t, buf.String(), "has no comments")
}

func TestProgressDisplayClosedWithoutResult(t *testing.T) {
	events := make(chan harvester.Event)
	close(events)

	res, err := NewProgressDisplay(&bytes.Buffer{}, "x", false).Run(events)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

type recordingSender struct {
	titles, messages []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return errors.New("no notification daemon")
}

func TestNotifyResult(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	defer func() { Output = old }()

	sender := &recordingSender{}
	n := NewNotifierWithSender(sender)

	n.NotifyResult(&harvester.Result{Title: "demo", State: harvester.StateCompleted, Downloaded: 7,
		Regions: map[string]*stats.RegionStat{"上海": region("上海", 1)}})
	n.NotifyResult(&harvester.Result{Title: "demo", State: harvester.StateAborted, Downloaded: 3, Total: 9})
	n.NotifyResult(&harvester.Result{Title: "demo", Err: errors.New("fetch comment count: boom")})
	n.NotifyResult(nil)

	require.Len(t, sender.messages, 3)
	assert.Equal(t, "bicodown: demo", sender.titles[0])
	assert.Equal(t, "7 comments from 1 regions", sender.messages[0])
	assert.Equal(t, "stopped at 3/9 comments", sender.messages[1])
	assert.Contains(t, sender.messages[2], "boom")
	assert.Contains(t, buf.String(), "boom")
}
