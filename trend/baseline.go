package trend

// Baseline is the persisted set of previously seen title keys for one
// reporting day. It is the only durable state the engine depends on: loaded
// at window start, extended with the window's keys exactly once, persisted
// at window end. Callers own the lifecycle and must serialize concurrent
// windows for the same day (single-writer discipline); the engine itself
// never locks.
type Baseline struct {
	Day   string
	Known map[Key]struct{}

	// Exists distinguishes "no baseline was ever persisted for this day"
	// from "a baseline exists but is empty". The distinction matters: on a
	// first-ever run there is no prior cycle to diff against, and treating
	// everything as new would flood the report with false positives.
	Exists bool
}

// NewBaseline returns an empty, existing baseline for a day.
func NewBaseline(day string) *Baseline {
	return &Baseline{Day: day, Known: make(map[Key]struct{}), Exists: true}
}

// Has reports whether the key was seen in a previous cycle.
func (b *Baseline) Has(key Key) bool {
	_, ok := b.Known[key]
	return ok
}

// Extend adds every key of the window's record map to the known set and
// marks the baseline as existing. Call exactly once per window, after
// diffing, or subsequent cycles will re-announce the same titles as new.
func (b *Baseline) Extend(records map[Key]*TitleRecord) {
	if b.Known == nil {
		b.Known = make(map[Key]struct{}, len(records))
	}
	for key := range records {
		b.Known[key] = struct{}{}
	}
	b.Exists = true
}

// Len returns the number of known keys.
func (b *Baseline) Len() int {
	return len(b.Known)
}
