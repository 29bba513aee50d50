package trend

import (
	"math"
	"sort"
)

// Aggregate groups normalized title records by matched keyword bucket and
// produces sorted per-bucket statistics.
//
// Records that match no group are excluded entirely. Bucket Count is the
// number of distinct (source, title) records: a title polled five times
// still counts once. Percentages are computed in a second pass once the
// total across all buckets is known, rounded to one decimal.
//
// Buckets are sorted by count descending; ties keep rule declaration order.
// Within a bucket, titles keep the order their records were first
// discovered in, so repeated runs over the same record map produce
// byte-identical, diffable output.
func Aggregate(records map[Key]*TitleRecord, rules *RuleSet, rankThreshold int, idToName map[string]string) []Stat {
	type matched struct {
		key Key
		rec *TitleRecord
	}

	buckets := make(map[string][]matched)
	total := 0
	for key, rec := range records {
		word, ok := rules.Match(key.Title)
		if !ok {
			continue
		}
		buckets[word] = append(buckets[word], matched{key: key, rec: rec})
		total++
	}

	stats := make([]Stat, 0, len(buckets))
	for word, entries := range buckets {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].rec.Seq < entries[j].rec.Seq
		})

		titles := make([]TitleEntry, 0, len(entries))
		for _, m := range entries {
			titles = append(titles, TitleEntry{
				Title:         m.key.Title,
				SourceID:      m.key.SourceID,
				SourceName:    sourceName(idToName, m.key.SourceID),
				Ranks:         m.rec.Ranks,
				RankThreshold: rankThreshold,
				Tier:          m.rec.Tier(rankThreshold),
				TimeDisplay:   timeDisplay(m.rec),
				Count:         m.rec.Count,
				URL:           m.rec.URL,
				MobileURL:     m.rec.MobileURL,
			})
		}

		stats = append(stats, Stat{
			Word:       word,
			Count:      len(titles),
			Percentage: percentage(len(titles), total),
			Titles:     titles,
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return rules.GroupIndex(stats[i].Word) < rules.GroupIndex(stats[j].Word)
	})
	return stats
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(100*float64(count)/float64(total)*10) / 10
}

func sourceName(idToName map[string]string, id string) string {
	if name, ok := idToName[id]; ok && name != "" {
		return name
	}
	// Unknown ids fall back to the raw id rather than failing.
	return id
}

// timeDisplay renders the observed time span of a record, e.g.
// "08:15" for a single poll or "08:15 ~ 21:30" for a range.
func timeDisplay(rec *TitleRecord) string {
	first := rec.FirstSeen.Format("15:04")
	last := rec.LastSeen.Format("15:04")
	if first == last {
		return first
	}
	return first + " ~ " + last
}
