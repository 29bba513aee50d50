package trend

import "log/slog"

// Normalize reduces a window's raw observations into per-(source, title)
// records.
//
// Observations are consumed in the order given, which is poll order: ranks
// are appended in that order even when timestamps arrive out of sequence,
// because rank-range display downstream assumes the sequence reflects
// consecutive polls. First/last seen times still come from the timestamps
// themselves.
//
// A malformed observation (empty title or non-positive rank) is dropped
// with a warning; one corrupt scrape must not abort the whole window.
func Normalize(observations []Observation, logger *slog.Logger) map[Key]*TitleRecord {
	if logger == nil {
		logger = slog.Default()
	}

	records := make(map[Key]*TitleRecord)
	seq := 0
	for _, obs := range observations {
		if obs.Title == "" {
			logger.Warn("dropping observation with empty title", "source_id", obs.SourceID)
			continue
		}
		if obs.Rank <= 0 {
			logger.Warn("dropping observation with malformed rank",
				"source_id", obs.SourceID, "title", obs.Title, "rank", obs.Rank)
			continue
		}

		key := Key{SourceID: obs.SourceID, Title: obs.Title}
		rec, ok := records[key]
		if !ok {
			records[key] = &TitleRecord{
				Ranks:     []int{obs.Rank},
				FirstSeen: obs.Timestamp,
				LastSeen:  obs.Timestamp,
				Count:     1,
				URL:       obs.URL,
				MobileURL: obs.MobileURL,
				Seq:       seq,
			}
			seq++
			continue
		}

		rec.Ranks = append(rec.Ranks, obs.Rank)
		rec.Count++
		if obs.Timestamp.Before(rec.FirstSeen) {
			rec.FirstSeen = obs.Timestamp
		}
		if obs.Timestamp.After(rec.LastSeen) {
			rec.LastSeen = obs.Timestamp
		}
		// First non-empty URL wins; a later empty value never clears it.
		if rec.URL == "" && obs.URL != "" {
			rec.URL = obs.URL
		}
		if rec.MobileURL == "" && obs.MobileURL != "" {
			rec.MobileURL = obs.MobileURL
		}
	}
	return records
}
