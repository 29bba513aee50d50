// Package trend reduces repeated, time-stamped snapshots of ranked titles
// into a queryable trend summary: which keyword buckets are hot, how titles
// moved in rank, and what surfaced since the previous polling cycle.
//
// The engine is a single-pass, synchronous batch transformation per
// reporting window. It performs no I/O itself; persistence of snapshots and
// the new-title baseline lives in internal/store.
package trend

import "time"

// ReportMode selects which view of the window a report covers.
type ReportMode string

const (
	// ModeDaily covers the full reporting day.
	ModeDaily ReportMode = "daily"
	// ModeIncremental covers only the latest polling slice. The new-title
	// section is always suppressed in this mode: the report itself is the
	// delta by construction.
	ModeIncremental ReportMode = "incremental"
	// ModeCurrent covers the latest snapshot per source.
	ModeCurrent ReportMode = "current"
)

// Valid reports whether m is a known report mode.
func (m ReportMode) Valid() bool {
	switch m {
	case ModeDaily, ModeIncremental, ModeCurrent:
		return true
	}
	return false
}

// Rank tiers derived from a title's best observed rank.
const (
	TierTop    = "top"    // best rank <= 3
	TierHigh   = "high"   // best rank <= configured threshold
	TierNormal = "normal" // everything else
)

// Observation is one scrape event handed in by the fetch layer: a title seen
// at a rank on a source platform at poll time. Immutable.
type Observation struct {
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	Rank      int       `json:"rank"` // 1-based position at scrape time
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
	MobileURL string    `json:"mobile_url,omitempty"`
}

// Key identifies a title on a source platform. Title text is the exact
// match key; no fuzzy dedup happens at this layer.
type Key struct {
	SourceID string
	Title    string
}

// TitleRecord aggregates every observation of one (source, title) pair
// within the reporting window.
//
// Ranks holds one entry per observation in poll order, never timestamp
// order: downstream rank-range display depends on the sequence reflecting
// consecutive polls. Seq records discovery order across the whole window so
// output ordering is explicit rather than an accident of map iteration.
type TitleRecord struct {
	Ranks     []int     `json:"ranks"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"` // invariant: Count == len(Ranks)
	URL       string    `json:"url,omitempty"`
	MobileURL string    `json:"mobile_url,omitempty"`
	Seq       int       `json:"-"`
}

// MinRank returns the best (lowest) rank the title ever reached.
func (r *TitleRecord) MinRank() int {
	min := r.Ranks[0]
	for _, v := range r.Ranks[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Tier classifies the record against a rank threshold. Rendering hint only;
// never used to filter.
func (r *TitleRecord) Tier(rankThreshold int) string {
	m := r.MinRank()
	switch {
	case m <= 3:
		return TierTop
	case m <= rankThreshold:
		return TierHigh
	default:
		return TierNormal
	}
}

// TitleEntry is one render-ready title inside a Stat bucket.
type TitleEntry struct {
	Title         string `json:"title"`
	SourceID      string `json:"source_id"`
	SourceName    string `json:"source_name"`
	Ranks         []int  `json:"ranks"`
	RankThreshold int    `json:"rank_threshold"`
	Tier          string `json:"tier"`
	TimeDisplay   string `json:"time_display"`
	Count         int    `json:"count"`
	URL           string `json:"url,omitempty"`
	MobileURL     string `json:"mobile_url,omitempty"`
	IsNew         bool   `json:"is_new"`
}

// Stat is one keyword bucket in the aggregated output.
// Invariant: Count == len(Titles); zero-count buckets are dropped.
type Stat struct {
	Word       string       `json:"word"`
	Count      int          `json:"count"`
	Percentage float64      `json:"percentage"`
	Titles     []TitleEntry `json:"titles"`
}

// NewTitle carries the rank history of a title first seen this window.
type NewTitle struct {
	URL       string `json:"url,omitempty"`
	MobileURL string `json:"mobile_url,omitempty"`
	Ranks     []int  `json:"ranks"`

	// seq preserves discovery order for deterministic report assembly.
	seq int
}

// NewTitlesDelta maps source_id -> title -> history for titles absent from
// the persisted baseline. Produced fresh each run.
type NewTitlesDelta map[string]map[string]NewTitle

// SourceGroup is the per-source new-title section of a report.
type SourceGroup struct {
	SourceID   string       `json:"source_id"`
	SourceName string       `json:"source_name"`
	Titles     []TitleEntry `json:"titles"`
}

// ReportData is the assembled output consumed by renderers and exporters.
// The field names and nesting are a stable contract; do not change them
// incompatibly without versioning.
type ReportData struct {
	Stats         []Stat        `json:"stats"`
	NewTitles     []SourceGroup `json:"new_titles"`
	FailedIDs     []string      `json:"failed_ids"`
	TotalNewCount int           `json:"total_new_count"`
	Mode          ReportMode    `json:"mode"`
	TotalTitles   int           `json:"total_titles"`
	GeneratedAt   time.Time     `json:"generated_at"`
}
