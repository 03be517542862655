package scraper

import (
	"sort"
	"time"
)

// SourceID names a registered job source (e.g. "remotive").
type SourceID string

// SalaryRange is an annualised salary band. Min and Max may be equal.
type SalaryRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Within reports whether the whole band lies in [lo, hi]; zero bounds are
// open. A 60k-100k band fails both an 80k floor and a 70k ceiling.
func (r SalaryRange) Within(lo, hi float64) bool {
	if lo > 0 && r.Min < lo {
		return false
	}
	if hi > 0 && r.Max > hi {
		return false
	}
	return true
}

// JobRecord is one discovered posting as produced by a source adapter.
type JobRecord struct {
	Title        string       `json:"title"`
	Company      string       `json:"company"`
	Location     string       `json:"location"`
	URL          string       `json:"url"`
	Description  string       `json:"description,omitempty"`
	Salary       *SalaryRange `json:"salary,omitempty"`
	JobType      string       `json:"job_type,omitempty"`
	Source       SourceID     `json:"source"`
	DiscoveredAt time.Time    `json:"discovered_at"`
}

// SeenJob is the persisted dedup row.
type SeenJob struct {
	Fingerprint string
	FirstSeen   time.Time
	Source      SourceID
	Record      JobRecord
}

// Identity is the request identity presented to a source.
type Identity struct {
	UserAgent string
	Proxy     string
}

// FilterSpec describes which postings a user wants.
type FilterSpec struct {
	IncludeKeywords  []string `json:"include_keywords,omitempty" mapstructure:"include_keywords"`
	ExcludeKeywords  []string `json:"exclude_keywords,omitempty" mapstructure:"exclude_keywords"`
	Locations        []string `json:"locations,omitempty" mapstructure:"locations"`
	ExcludeLocations []string `json:"exclude_locations,omitempty" mapstructure:"exclude_locations"`
	RemoteOnly       bool     `json:"remote_only,omitempty" mapstructure:"remote_only"`
	RemoteIndicators []string `json:"remote_indicators,omitempty" mapstructure:"remote_indicators"`
	MinSalary        float64  `json:"min_salary,omitempty" mapstructure:"min_salary"`
	MaxSalary        float64  `json:"max_salary,omitempty" mapstructure:"max_salary"`
	JobTypes         []string `json:"job_types,omitempty" mapstructure:"job_types"`
	ExperienceLevels []string `json:"experience_levels,omitempty" mapstructure:"experience_levels"`
}

// DedupResult splits a batch by what the dedup store decided. Records that
// failed normalization, hit a store error or were left unchecked when the
// context ended count as errored.
type DedupResult struct {
	New       []JobRecord
	Duplicate map[SourceID]int
	Errored   map[SourceID]int
}

// SourceStats counts the outcome of one source within a cycle.
type SourceStats struct {
	Scraped     int `json:"scraped"`
	New         int `json:"new"`
	Duplicate   int `json:"duplicate"`
	Filtered    int `json:"filtered"`
	Errored     int `json:"errored"`
	Delivered   int `json:"delivered"`
	Units       int `json:"units"`
	FailedUnits int `json:"failed_units"`
	Skipped     int `json:"skipped"`
}

// Failed reports whether every attempted unit of the source failed.
func (s SourceStats) Failed() bool {
	return s.FailedUnits > 0 && s.FailedUnits >= s.Units-s.Skipped
}

// CycleStats aggregates one cycle, grouped exactly by source.
type CycleStats struct {
	CycleID   string                    `json:"cycle_id"`
	UserID    string                    `json:"user_id,omitempty"`
	StartedAt time.Time                 `json:"started_at"`
	Duration  time.Duration             `json:"duration"`
	PerSource map[SourceID]*SourceStats `json:"per_source"`
	TimedOut  bool                      `json:"timed_out,omitempty"`
}

// NewCycleStats returns stats with an initialised per-source map.
func NewCycleStats(cycleID string, startedAt time.Time) CycleStats {
	return CycleStats{
		CycleID:   cycleID,
		StartedAt: startedAt,
		PerSource: make(map[SourceID]*SourceStats),
	}
}

// Source returns the counters for id, creating them on first use.
func (c *CycleStats) Source(id SourceID) *SourceStats {
	if c.PerSource == nil {
		c.PerSource = make(map[SourceID]*SourceStats)
	}
	s, ok := c.PerSource[id]
	if !ok {
		s = &SourceStats{}
		c.PerSource[id] = s
	}
	return s
}

// Totals sums all per-source counters.
func (c CycleStats) Totals() SourceStats {
	var t SourceStats
	for _, s := range c.PerSource {
		t.Scraped += s.Scraped
		t.New += s.New
		t.Duplicate += s.Duplicate
		t.Filtered += s.Filtered
		t.Errored += s.Errored
		t.Delivered += s.Delivered
		t.Units += s.Units
		t.FailedUnits += s.FailedUnits
		t.Skipped += s.Skipped
	}
	return t
}

// Sources lists the sources present in the stats in stable order.
func (c CycleStats) Sources() []SourceID {
	ids := make([]SourceID, 0, len(c.PerSource))
	for id := range c.PerSource {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
