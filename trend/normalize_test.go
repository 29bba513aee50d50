package trend

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 8, 30, h, m, 0, 0, time.UTC)
}

func TestNormalize_PollOrderRanks(t *testing.T) {
	// WHAT: Ranks append in poll order even when timestamps are shuffled.
	// WHY: Rank-range display assumes the sequence reflects consecutive
	// polls, not wall-clock sorting.
	obs := []Observation{
		{SourceID: "s1", Title: "a", Rank: 4, Timestamp: at(10, 0)},
		{SourceID: "s1", Title: "a", Rank: 2, Timestamp: at(9, 0)}, // earlier timestamp, later poll
	}
	records := Normalize(obs, nil)

	rec := records[Key{SourceID: "s1", Title: "a"}]
	if rec == nil {
		t.Fatal("record missing")
	}
	if len(rec.Ranks) != 2 || rec.Ranks[0] != 4 || rec.Ranks[1] != 2 {
		t.Fatalf("ranks: %v, want [4 2]", rec.Ranks)
	}
	if rec.Count != 2 {
		t.Errorf("count: %d", rec.Count)
	}
	// FirstSeen/LastSeen still follow timestamps.
	if !rec.FirstSeen.Equal(at(9, 0)) || !rec.LastSeen.Equal(at(10, 0)) {
		t.Errorf("seen span: %v .. %v", rec.FirstSeen, rec.LastSeen)
	}
}

func TestNormalize_FirstURLWins(t *testing.T) {
	// WHAT: The first non-empty URL is kept; later values never overwrite
	// it and later empties never clear it.
	// WHY: A report regenerated mid-day must not flip URLs.
	obs := []Observation{
		{SourceID: "s1", Title: "a", Rank: 1, Timestamp: at(8, 0)},
		{SourceID: "s1", Title: "a", Rank: 1, Timestamp: at(9, 0), URL: "https://first", MobileURL: "https://m-first"},
		{SourceID: "s1", Title: "a", Rank: 1, Timestamp: at(10, 0), URL: "https://second"},
		{SourceID: "s1", Title: "a", Rank: 1, Timestamp: at(11, 0)},
	}
	rec := Normalize(obs, nil)[Key{SourceID: "s1", Title: "a"}]
	if rec.URL != "https://first" {
		t.Errorf("url: %q", rec.URL)
	}
	if rec.MobileURL != "https://m-first" {
		t.Errorf("mobile url: %q", rec.MobileURL)
	}
}

func TestNormalize_DropsMalformed(t *testing.T) {
	// WHAT: Empty titles and non-positive ranks are dropped, the rest of
	// the window survives.
	// WHY: One corrupt scrape must not abort the whole window.
	obs := []Observation{
		{SourceID: "s1", Title: "", Rank: 1, Timestamp: at(8, 0)},
		{SourceID: "s1", Title: "bad rank", Rank: 0, Timestamp: at(8, 0)},
		{SourceID: "s1", Title: "bad rank", Rank: -3, Timestamp: at(8, 0)},
		{SourceID: "s1", Title: "good", Rank: 5, Timestamp: at(8, 0)},
	}
	records := Normalize(obs, nil)
	if len(records) != 1 {
		t.Fatalf("records: %d, want 1", len(records))
	}
	if _, ok := records[Key{SourceID: "s1", Title: "good"}]; !ok {
		t.Error("surviving record missing")
	}
}

func TestNormalize_SeparateKeysPerSource(t *testing.T) {
	// WHAT: The same title on two sources yields two records with
	// discovery-order sequence numbers.
	// WHY: Keys are (source, title) pairs; cross-source dedup is not this
	// layer's job.
	obs := []Observation{
		{SourceID: "s1", Title: "a", Rank: 1, Timestamp: at(8, 0)},
		{SourceID: "s2", Title: "a", Rank: 7, Timestamp: at(8, 0)},
	}
	records := Normalize(obs, nil)
	if len(records) != 2 {
		t.Fatalf("records: %d, want 2", len(records))
	}
	r1 := records[Key{SourceID: "s1", Title: "a"}]
	r2 := records[Key{SourceID: "s2", Title: "a"}]
	if r1.Seq != 0 || r2.Seq != 1 {
		t.Errorf("seq: %d, %d, want 0, 1", r1.Seq, r2.Seq)
	}
}

func TestTitleRecord_Tiers(t *testing.T) {
	// WHAT: Tier classification against threshold 5: best rank 2 is top,
	// 5 is high, 9 is normal.
	// WHY: The tier boundaries are a rendering contract.
	cases := []struct {
		ranks []int
		want  string
	}{
		{[]int{2}, TierTop},
		{[]int{3, 8}, TierTop},
		{[]int{5}, TierHigh},
		{[]int{9}, TierNormal},
		{[]int{4, 2}, TierTop}, // best of the history counts
	}
	for _, tc := range cases {
		rec := &TitleRecord{Ranks: tc.ranks}
		if got := rec.Tier(5); got != tc.want {
			t.Errorf("Tier(%v) = %q, want %q", tc.ranks, got, tc.want)
		}
	}
}
