package store

// Source is a platform the fetch layer scrapes.
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Observation is one stored scrape row. ObservedAt is unix milliseconds;
// PollSeq is a per-day monotonic counter preserving poll order; PollID
// groups the rows of a single ingest batch.
type Observation struct {
	ID         string `json:"id"`
	Day        string `json:"day"`
	PollID     string `json:"poll_id"`
	SourceID   string `json:"source_id"`
	Title      string `json:"title"`
	Rank       int    `json:"rank"`
	URL        string `json:"url,omitempty"`
	MobileURL  string `json:"mobile_url,omitempty"`
	ObservedAt int64  `json:"observed_at"`
	PollSeq    int64  `json:"poll_seq"`
}

// KeyPair identifies a (source, title) baseline entry.
type KeyPair struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
}

// ReportLogEntry records one generated report.
type ReportLogEntry struct {
	ID          string `json:"id"`
	Day         string `json:"day"`
	Mode        string `json:"mode"`
	TotalTitles int    `json:"total_titles"`
	NewCount    int    `json:"new_count"`
	GeneratedAt int64  `json:"generated_at"`
}

// Stats holds aggregate counters for the whole database.
type Stats struct {
	Sources      int    `json:"sources"`
	Observations int    `json:"observations"`
	Days         int    `json:"days"`
	Reports      int    `json:"reports"`
	LatestDay    string `json:"latest_day,omitempty"`
}
