package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"bicodown/pkg/harvester"
	"bicodown/pkg/stats"
)

// ProgressDisplay is the line-mode display: a single progress line that is
// redrawn per page, with errors and the summary printed below it
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	label      string
	page       int
	downloaded int
	total      int
	persisted  int
	errors     int
	regions    map[string]*stats.RegionStat
	startTime  time.Time
	isDebug    bool
	topN       int
}

// NewProgressDisplay creates a display for the content called label. In
// debug mode every event gets its own line instead of a redrawn one.
func NewProgressDisplay(out io.Writer, label string, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       out,
		label:     label,
		regions:   make(map[string]*stats.RegionStat),
		startTime: time.Now(),
		isDebug:   debug,
		topN:      5,
	}
}

// Run consumes events until the channel is closed
func (p *ProgressDisplay) Run(events <-chan harvester.Event) (*harvester.Result, error) {
	var result *harvester.Result
	for ev := range events {
		if res := p.Handle(ev); res != nil {
			result = res
		}
	}
	return result, nil
}

// Handle applies one event and returns the Result carried by a Completed
// event
func (p *ProgressDisplay) Handle(ev harvester.Event) *harvester.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded = ev.Downloaded
	p.total = ev.Total

	switch ev.Type {
	case harvester.EventPageFetched:
		p.page = ev.Page
		if p.isDebug {
			fmt.Fprintf(p.out, "%s page %d: %d replies\n", Magenta("→"), ev.Page, ev.Replies)
		} else {
			p.printProgress()
		}
	case harvester.EventCommentsPersisted:
		p.persisted += ev.Persisted
		if !p.isDebug {
			p.printProgress()
		}
	case harvester.EventRegionUpdated:
		if ev.Region != nil {
			p.regions[ev.Region.Name] = ev.Region
		}
	case harvester.EventError:
		p.errors++
		if ev.Page > 0 {
			fmt.Fprintf(p.out, "\n%s page %d: %v\n", Red("✗"), ev.Page, ev.Err)
		} else {
			fmt.Fprintf(p.out, "\n%s %v\n", Red("✗"), ev.Err)
		}
	case harvester.EventCompleted:
		if ev.Result != nil {
			p.complete(ev.Result)
		}
		return ev.Result
	}
	return nil
}

// printProgress redraws the progress line
func (p *ProgressDisplay) printProgress() {
	elapsed := time.Since(p.startTime)
	eta := "calculating..."
	if d, ok := ETA(p.downloaded, p.total, elapsed); ok {
		eta = FormatDuration(d)
	}

	line := fmt.Sprintf("%s [%s] %d/%d • page %d • %s",
		Cyan(p.label),
		Bar(p.downloaded, p.total, 20),
		p.downloaded,
		p.total,
		p.page,
		eta,
	)
	if p.errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.errors)))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

// complete prints the run summary with the busiest regions
func (p *ProgressDisplay) complete(res *harvester.Result) {
	fmt.Fprintln(p.out)
	if res.NoComments {
		fmt.Fprintf(p.out, "%s %s has no comments\n", Yellow("!"), p.label)
		return
	}

	mark := Green("✓")
	if res.State == harvester.StateAborted {
		mark = Yellow("⏸")
	}
	fmt.Fprintf(p.out, "\n%s %s: %d/%d comments (%d new) in %s\n",
		mark, p.label, res.Downloaded, res.Total, res.Persisted, FormatDuration(res.Duration))

	if res.SkippedPages > 0 {
		fmt.Fprintf(p.out, "  %s %d pages skipped\n", Dim("•"), res.SkippedPages)
	}
	if res.Err != nil {
		fmt.Fprintf(p.out, "  %s %v\n", Red("•"), res.Err)
	}

	regions := res.Regions
	if len(regions) == 0 {
		regions = p.regions
	}
	for i, region := range stats.Ranked(regions) {
		if i == p.topN {
			break
		}
		fmt.Fprintf(p.out, "  %s %-8s %6d comments %6d users %7d likes\n",
			Dim("•"), region.Name, region.Comments, region.UserCount(), region.Likes)
	}
}
