package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// FromCSV rebuilds regions from a dataset file. Rows are read leniently:
// an invalid sex becomes 保密, an invalid level 0, a blank mid "0" and a
// blank location 未知.
func FromCSV(path string) (map[string]*RegionStat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV is FromCSV over a reader
func ReadCSV(r io.Reader) (map[string]*RegionStat, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]*RegionStat{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	regions := map[string]*RegionStat{}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		name := Normalize(field(rec, "location"))
		userID := field(rec, "mid")
		if userID == "" {
			userID = "0"
		}
		like, _ := strconv.Atoi(field(rec, "like"))
		level, err := strconv.Atoi(field(rec, "level"))
		if err != nil {
			level = 0
		}

		region, ok := regions[name]
		if !ok {
			region = NewRegionStat(name)
			regions[name] = region
		}
		region.Add(userID, field(rec, "sex"), like, level)
	}

	for _, region := range regions {
		region.Recalculate()
	}
	return regions, nil
}
