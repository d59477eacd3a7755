package stats

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"bicodown/pkg/models"
)

// Unknown is the bucket for comments without an IP location
const Unknown = "未知"

// Sex values as reported by the platform
const (
	SexMale   = "男"
	SexFemale = "女"
	SexSecret = "保密"
)

// MaxLevel is the highest account level
const MaxLevel = 6

// RegionStat aggregates the comments of one location. Sex counts are
// always derived from UserSex, so their sum equals the number of users.
type RegionStat struct {
	Name     string              `json:"name"`
	Comments int                 `json:"comments"`
	Likes    int                 `json:"likes"`
	Level    [MaxLevel + 1]int   `json:"level"`
	Sex      map[string]int      `json:"sex"`
	Users    map[string]struct{} `json:"-"`
	UserSex  map[string]string   `json:"user_sex"`
}

// NewRegionStat creates an empty region
func NewRegionStat(name string) *RegionStat {
	return &RegionStat{
		Name:    name,
		Sex:     map[string]int{SexMale: 0, SexFemale: 0, SexSecret: 0},
		Users:   map[string]struct{}{},
		UserSex: map[string]string{},
	}
}

// UserCount is the number of distinct commenters
func (s *RegionStat) UserCount() int {
	return len(s.Users)
}

// NormalizeSex maps anything but 男 and 女 to 保密
func NormalizeSex(sex string) string {
	switch sex {
	case SexMale, SexFemale:
		return sex
	default:
		return SexSecret
	}
}

// UpdateUserSex records the latest known sex of a user, replacing any
// earlier value in the counts.
func (s *RegionStat) UpdateUserSex(userID, sex string) {
	sex = NormalizeSex(sex)
	if old, ok := s.UserSex[userID]; ok {
		s.Sex[old]--
	}
	s.Users[userID] = struct{}{}
	s.UserSex[userID] = sex
	s.Sex[sex]++
}

// Recalculate rebuilds Sex and Users from UserSex
func (s *RegionStat) Recalculate() {
	s.Sex = map[string]int{SexMale: 0, SexFemale: 0, SexSecret: 0}
	s.Users = make(map[string]struct{}, len(s.UserSex))
	for id, sex := range s.UserSex {
		s.Users[id] = struct{}{}
		s.Sex[sex]++
	}
}

// Add counts one comment by userID
func (s *RegionStat) Add(userID, sex string, like, level int) {
	if level < 0 || level > MaxLevel {
		level = 0
	}
	s.Comments++
	s.Likes += like
	s.Level[level]++
	s.UpdateUserSex(userID, sex)
}

// Merge folds other into s
func (s *RegionStat) Merge(other *RegionStat) {
	s.Comments += other.Comments
	s.Likes += other.Likes
	for i := range s.Level {
		s.Level[i] += other.Level[i]
	}
	for id, sex := range other.UserSex {
		s.UpdateUserSex(id, sex)
	}
}

// Clone returns a deep copy
func (s *RegionStat) Clone() *RegionStat {
	c := NewRegionStat(s.Name)
	c.Comments = s.Comments
	c.Likes = s.Likes
	c.Level = s.Level
	for id, sex := range s.UserSex {
		c.UserSex[id] = sex
	}
	c.Recalculate()
	return c
}

// Normalize maps a raw location to its region key. Names are kept as
// reported; only the blank location is rewritten.
func Normalize(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return Unknown
	}
	return location
}

// Aggregator accumulates regions over a run. It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	regions map[string]*RegionStat
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{regions: map[string]*RegionStat{}}
}

// Add counts c under its normalized location and returns a copy of the
// updated region.
func (a *Aggregator) Add(c *models.Comment) *RegionStat {
	name := Normalize(c.Location)

	a.mu.Lock()
	defer a.mu.Unlock()

	region, ok := a.regions[name]
	if !ok {
		region = NewRegionStat(name)
		a.regions[name] = region
	}
	region.Add(strconv.FormatInt(c.MID, 10), c.Sex, c.Like, c.Level)
	return region.Clone()
}

// Len is the number of regions seen
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.regions)
}

// Snapshot returns a deep copy of every region
func (a *Aggregator) Snapshot() map[string]*RegionStat {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]*RegionStat, len(a.regions))
	for name, region := range a.regions {
		out[name] = region.Clone()
	}
	return out
}

// Ranked orders regions by comment count, busiest first, ties by name
func Ranked(regions map[string]*RegionStat) []*RegionStat {
	out := make([]*RegionStat, 0, len(regions))
	for _, r := range regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Comments != out[j].Comments {
			return out[i].Comments > out[j].Comments
		}
		return out[i].Name < out[j].Name
	})
	return out
}
