package trend

import (
	"fmt"
	"sort"
	"time"
)

// Assemble combines aggregated stats and the new-title delta into one
// immutable ReportData for renderers and exporters.
//
// The new-title section is gated here, exactly once:
// hidden when mode is incremental or showNewSection is false. Callers never
// re-derive that flag. Stat entries whose key appears in the delta are
// marked IsNew so the two views stay consistent.
//
// Zero-count buckets were already dropped by Aggregate; that is re-asserted
// here as an invariant check together with Count == len(Titles), and a
// violation surfaces as ErrInvariant rather than being silently repaired.
func Assemble(stats []Stat, delta NewTitlesDelta, failedIDs []string, mode ReportMode, rankThreshold int, showNewSection bool, idToName map[string]string) (*ReportData, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	hideNew := mode == ModeIncremental || !showNewSection

	totalTitles := 0
	for i := range stats {
		s := &stats[i]
		if s.Count <= 0 {
			return nil, fmt.Errorf("%w: bucket %q has count %d", ErrInvariant, s.Word, s.Count)
		}
		if s.Count != len(s.Titles) {
			return nil, fmt.Errorf("%w: bucket %q count %d != %d titles", ErrInvariant, s.Word, s.Count, len(s.Titles))
		}
		totalTitles += s.Count
		if hideNew {
			continue
		}
		for j := range s.Titles {
			entry := &s.Titles[j]
			if perSource, ok := delta[entry.SourceID]; ok {
				if _, ok := perSource[entry.Title]; ok {
					entry.IsNew = true
				}
			}
		}
	}

	if stats == nil {
		stats = []Stat{}
	}
	report := &ReportData{
		Stats:       stats,
		NewTitles:   []SourceGroup{},
		Mode:        mode,
		TotalTitles: totalTitles,
		GeneratedAt: time.Now(),
	}
	if failedIDs != nil {
		report.FailedIDs = failedIDs
	} else {
		report.FailedIDs = []string{}
	}

	if hideNew {
		return report, nil
	}

	sourceIDs := make([]string, 0, len(delta))
	for id := range delta {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	for _, sourceID := range sourceIDs {
		perSource := delta[sourceID]
		if len(perSource) == 0 {
			continue
		}
		name := sourceName(idToName, sourceID)

		type ordered struct {
			title string
			nt    NewTitle
		}
		entries := make([]ordered, 0, len(perSource))
		for title, nt := range perSource {
			entries = append(entries, ordered{title: title, nt: nt})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].nt.seq < entries[j].nt.seq })

		titles := make([]TitleEntry, 0, len(entries))
		for _, e := range entries {
			titles = append(titles, TitleEntry{
				Title:         e.title,
				SourceID:      sourceID,
				SourceName:    name,
				Ranks:         e.nt.Ranks,
				RankThreshold: rankThreshold,
				Count:         1,
				URL:           e.nt.URL,
				MobileURL:     e.nt.MobileURL,
				IsNew:         true,
			})
		}
		report.NewTitles = append(report.NewTitles, SourceGroup{
			SourceID:   sourceID,
			SourceName: name,
			Titles:     titles,
		})
		report.TotalNewCount += len(titles)
	}

	return report, nil
}
