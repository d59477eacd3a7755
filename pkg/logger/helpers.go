package logger

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// LogRequest logs one HTTP exchange with the platform
func LogRequest(l Logger, method, url string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.ErrorWithFields("HTTP request server error", fields)
	}
}

// LogPageProgress logs harvesting progress after a page was persisted
func LogPageProgress(l Logger, identifier string, page, downloaded, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(downloaded) / float64(total) * 100
	}

	l.WithFields(map[string]interface{}{
		"identifier": identifier,
		"page":       page,
		"downloaded": downloaded,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info("Harvest progress")
}

// LogHarvestSummary logs the final downloaded-vs-reported line of a run
func LogHarvestSummary(l Logger, identifier, title, state string, downloaded, total int) {
	l.WithFields(map[string]interface{}{
		"identifier": identifier,
		"title":      title,
		"state":      state,
		"downloaded": downloaded,
		"total":      total,
	}).Info("Harvest finished")
}

// RegionCount is what the operator needs to judge an unmatched region
type RegionCount struct {
	Comments int `json:"comments"`
	Users    int `json:"users"`
}

// LogUnmatchedRegions lists regions that could not be placed on the map,
// busiest first.
func LogUnmatchedRegions(l Logger, unmatched map[string]RegionCount) {
	if len(unmatched) == 0 {
		return
	}

	names := make([]string, 0, len(unmatched))
	for name := range unmatched {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := unmatched[names[i]], unmatched[names[j]]
		if a.Comments != b.Comments {
			return a.Comments > b.Comments
		}
		return names[i] < names[j]
	})

	l.WithField("count", len(names)).Warn("Regions without a map match")
	for _, name := range names {
		c := unmatched[name]
		l.WarnWithFields("Unmatched region", map[string]interface{}{
			"region":   name,
			"comments": c.Comments,
			"users":    c.Users,
		})
	}
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
