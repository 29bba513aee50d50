package trend

// Diff computes the new-title delta: records of the current window whose
// key is absent from the baseline. Pure function; persisting the extended
// baseline afterwards is the caller's job.
//
// Mode gates the whole computation. In incremental mode the section is
// always suppressed regardless of enabled: the incremental report is the
// delta by construction upstream. Daily and current modes honour enabled.
//
// A nil or never-persisted baseline (first-ever run) yields an empty delta:
// "baseline absent" is deliberately distinct from "baseline empty", which
// would mark every record as new.
//
// Candidates pass through the same rule matching as aggregation, so the
// new-title view and the stats view never disagree on what counts as a
// matched title.
func Diff(records map[Key]*TitleRecord, baseline *Baseline, rules *RuleSet, mode ReportMode, enabled bool) NewTitlesDelta {
	if mode == ModeIncremental || !enabled {
		return NewTitlesDelta{}
	}
	if baseline == nil || !baseline.Exists {
		return NewTitlesDelta{}
	}

	delta := NewTitlesDelta{}
	for key, rec := range records {
		if baseline.Has(key) {
			continue
		}
		if _, ok := rules.Match(key.Title); !ok {
			continue
		}
		perSource := delta[key.SourceID]
		if perSource == nil {
			perSource = make(map[string]NewTitle)
			delta[key.SourceID] = perSource
		}
		perSource[key.Title] = NewTitle{
			URL:       rec.URL,
			MobileURL: rec.MobileURL,
			Ranks:     rec.Ranks,
			seq:       rec.Seq,
		}
	}
	return delta
}
