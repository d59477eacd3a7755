// Package stats aggregates comments into per-location RegionStat values,
// either live during a harvest through an Aggregator or after the fact from
// a dataset file with FromCSV.
package stats
