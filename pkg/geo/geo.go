// Package geo annotates a GeoJSON FeatureCollection template with per-region
// comment statistics.
package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bicodown/pkg/logger"
	"bicodown/pkg/stats"
)

// Feature is one region of the template. Geometry is passed through as-is.
type Feature struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   json.RawMessage        `json:"geometry"`
}

// Name is properties.name
func (f *Feature) Name() string {
	return stringProperty(f.Properties, "name")
}

// FullName is properties.fullname, empty when absent
func (f *Feature) FullName() string {
	return stringProperty(f.Properties, "fullname")
}

// FeatureCollection is the template document
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// LoadTemplate reads a FeatureCollection from path
func LoadTemplate(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson template: %w", err)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse geojson template: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("geojson template %s has no features", path)
	}
	for i := range fc.Features {
		if fc.Features[i].Properties == nil {
			fc.Features[i].Properties = map[string]interface{}{}
		}
	}
	return &fc, nil
}

func stringProperty(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// Matches reports whether location names the feature: equal to, contained
// in, or containing its name or full name
func (f *Feature) Matches(location string) bool {
	if location == "" {
		return false
	}
	name, full := f.Name(), f.FullName()
	if name != "" && (location == name || strings.Contains(name, location) || strings.Contains(location, name)) {
		return true
	}
	if full != "" && (location == full || strings.Contains(full, location) || strings.Contains(location, full)) {
		return true
	}
	return false
}

// Match assigns every region to the first feature it matches. Regions that
// land on the same feature are merged. The input map is not modified.
func (fc *FeatureCollection) Match(regions map[string]*stats.RegionStat) (map[string]*stats.RegionStat, map[string]logger.RegionCount) {
	merged := make(map[string]*stats.RegionStat)
	unmatched := make(map[string]logger.RegionCount)

	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, location := range names {
		region := regions[location]
		feature := fc.find(location)
		if feature == nil {
			unmatched[location] = logger.RegionCount{Comments: region.Comments, Users: region.UserCount()}
			continue
		}

		key := feature.Name()
		if existing, ok := merged[key]; ok {
			existing.Merge(region)
			continue
		}
		clone := region.Clone()
		clone.Name = key
		merged[key] = clone
	}
	return merged, unmatched
}

func (fc *FeatureCollection) find(location string) *Feature {
	for i := range fc.Features {
		if fc.Features[i].Matches(location) {
			return &fc.Features[i]
		}
	}
	return nil
}

// apply writes the statistic properties of every feature, zeros where a
// feature has no data
func (fc *FeatureCollection) apply(merged map[string]*stats.RegionStat) {
	for i := range fc.Features {
		props := fc.Features[i].Properties
		region, ok := merged[fc.Features[i].Name()]
		if !ok {
			region = stats.NewRegionStat(fc.Features[i].Name())
		}

		props["count"] = region.Comments
		props["like"] = region.Likes
		props["male"] = region.Sex[stats.SexMale]
		props["female"] = region.Sex[stats.SexFemale]
		props["sexless"] = region.Sex[stats.SexSecret]
		props["users"] = region.UserCount()
		for lvl := 0; lvl <= stats.MaxLevel; lvl++ {
			props[fmt.Sprintf("level%d", lvl)] = region.Level[lvl]
		}
	}
}

// Annotate loads templatePath, fills it with regions and writes
// {dir}/{id}.geojson. It returns the written path and the regions that
// matched no feature, with their comment and user counts.
func Annotate(templatePath string, regions map[string]*stats.RegionStat, id, dir string, log logger.Logger) (string, map[string]logger.RegionCount, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	fc, err := LoadTemplate(templatePath)
	if err != nil {
		return "", nil, err
	}

	merged, unmatched := fc.Match(regions)
	fc.apply(merged)

	log.InfoWithFields("Regions matched to map", map[string]interface{}{
		"identifier": id,
		"matched":    len(regions) - len(unmatched),
		"regions":    len(regions),
		"features":   len(merged),
	})

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", unmatched, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, id+".geojson")
	if err := fc.write(path); err != nil {
		return "", unmatched, err
	}

	log.WithField("path", path).Info("GeoJSON written")
	return path, unmatched, nil
}

func (fc *FeatureCollection) write(path string) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write geojson: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save geojson: %w", err)
	}
	return nil
}
