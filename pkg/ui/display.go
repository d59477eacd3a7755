package ui

import "bicodown/pkg/harvester"

// Display renders the events of one harvest run. Run must drain events
// until the channel is closed and returns the run's Result, or nil when the
// channel closed without one.
type Display interface {
	Run(events <-chan harvester.Event) (*harvester.Result, error)
}

var _ Display = (*ProgressDisplay)(nil)
