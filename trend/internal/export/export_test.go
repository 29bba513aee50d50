package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestCSV(t *testing.T) {
	// WHAT: CSV output has the header plus one quoted line per row.
	// WHY: Titles contain commas; RFC 4180 quoting must handle them.
	var buf bytes.Buffer
	rows := []Row{
		{Day: "2026-08-30", Time: "08:15", SourceID: "hn", SourceName: "Hacker News",
			Title: "hello, world", Rank: 3, URL: "https://x"},
	}
	if err := CSV(&buf, rows); err != nil {
		t.Fatalf("csv: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: %d", len(lines))
	}
	if lines[0] != "day,time,source_id,source_name,title,rank,url" {
		t.Errorf("header: %q", lines[0])
	}
	if !strings.Contains(lines[1], `"hello, world"`) {
		t.Errorf("comma title not quoted: %q", lines[1])
	}
}

func TestCSV_Empty(t *testing.T) {
	// WHAT: No rows still yields the header.
	// WHY: An empty export must stay a valid CSV document.
	var buf bytes.Buffer
	if err := CSV(&buf, nil); err != nil {
		t.Fatalf("csv: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "day,time,source_id,source_name,title,rank,url" {
		t.Errorf("output: %q", buf.String())
	}
}

func TestJSON(t *testing.T) {
	// WHAT: JSON round-trips and an empty slice encodes as [], not null.
	// WHY: Downstream parsers choke on null arrays.
	var buf bytes.Buffer
	if err := JSON(&buf, nil); err != nil {
		t.Fatalf("json empty: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty output: %q", buf.String())
	}

	buf.Reset()
	in := []Row{{Day: "2026-08-30", SourceID: "hn", Title: "t", Rank: 1}}
	if err := JSON(&buf, in); err != nil {
		t.Fatalf("json: %v", err)
	}
	var out []Row
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Title != "t" {
		t.Errorf("round trip: %+v", out)
	}
}
