package harvester

import (
	"time"

	"bicodown/pkg/stats"
)

// State is a step of the harvesting state machine
type State int

const (
	StateIdle State = iota
	StateFetchingCount
	StateFetchingPage
	StateExpandingReplies
	StatePersisting
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingCount:
		return "fetching_count"
	case StateFetchingPage:
		return "fetching_page"
	case StateExpandingReplies:
		return "expanding_replies"
	case StatePersisting:
		return "persisting"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// EventType identifies what an Event reports
type EventType int

const (
	EventPageFetched EventType = iota + 1
	EventCommentsPersisted
	EventRegionUpdated
	EventError
	EventCompleted
)

func (t EventType) String() string {
	switch t {
	case EventPageFetched:
		return "page_fetched"
	case EventCommentsPersisted:
		return "comments_persisted"
	case EventRegionUpdated:
		return "region_updated"
	case EventError:
		return "error"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is one progress notification of a run. Only the fields relevant
// to Type are set; Downloaded and Total are always the running figures.
type Event struct {
	Type       EventType
	RunID      string
	Time       time.Time
	Page       int
	Replies    int
	Persisted  int
	Downloaded int
	Total      int
	// Region is a copy, safe to keep
	Region *stats.RegionStat
	Err    error
	Result *Result
}

// Result is the outcome of a run
type Result struct {
	RunID        string
	Identifier   string
	Title        string
	OID          int64
	State        State
	Total        int
	Downloaded   int
	Persisted    int
	Pages        int
	SkippedPages int
	// NoComments is set when the platform reported zero comments
	NoComments bool
	Regions    map[string]*stats.RegionStat
	Duration   time.Duration
	// Err is the error that ended the run early, if any
	Err error
}
