package trend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/trendradar/dbopen"
)

const testDay = "2026-08-30"

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)

	rules := mustRules(t, `
groups:
  - label: ai
    any_of: [ai]
  - label: space
    any_of: [rocket]
`)
	base := []ServiceOption{
		WithRules(rules),
		WithClock(func() time.Time { return at(12, 0) }),
	}
	svc, err := New(db, &Config{RankThreshold: 5}, nil, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func ingest(t *testing.T, svc *Service, titles ...string) {
	t.Helper()
	obs := make([]Observation, 0, len(titles))
	for i, title := range titles {
		obs = append(obs, Observation{SourceID: "hn", Title: title, Rank: i + 1})
	}
	if _, err := svc.IngestSnapshot(context.Background(), testDay, obs); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func TestService_FirstReportHasNoNewTitles(t *testing.T) {
	// WHAT: The first report of a day carries no new-title section.
	// WHY: No baseline exists yet; everything-is-new would be noise.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai breakthrough", "rocket launch")
	report, err := svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.TotalNewCount != 0 || len(report.NewTitles) != 0 {
		t.Fatalf("first run new titles: %d", report.TotalNewCount)
	}
	if report.TotalTitles != 2 {
		t.Errorf("total titles: %d", report.TotalTitles)
	}
}

func TestService_SecondPollFlagsOnlyNewTitles(t *testing.T) {
	// WHAT: After a first report established the baseline, a later poll's
	// unseen titles are flagged new; repeated titles are not.
	// WHY: This is the incremental-diff contract end to end.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai breakthrough")
	if _, err := svc.BuildReport(ctx, testDay, ModeDaily); err != nil {
		t.Fatalf("first build: %v", err)
	}

	ingest(t, svc, "ai breakthrough", "rocket maiden flight")
	report, err := svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if report.TotalNewCount != 1 {
		t.Fatalf("new count: %d, want 1", report.TotalNewCount)
	}
	if report.NewTitles[0].Titles[0].Title != "rocket maiden flight" {
		t.Errorf("new title: %q", report.NewTitles[0].Titles[0].Title)
	}

	// Building again without new data must not re-announce anything.
	report, err = svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("third build: %v", err)
	}
	if report.TotalNewCount != 0 {
		t.Errorf("re-announced titles: %d", report.TotalNewCount)
	}
}

func TestService_DuplicatePollsDoNotInflateCounts(t *testing.T) {
	// WHAT: Ingesting the same snapshot five times leaves bucket counts at
	// distinct-title levels.
	// WHY: Counts measure titles, not polling frequency.
	svc := newTestService(t)
	ctx := context.Background()

	for range [5]int{} {
		ingest(t, svc, "ai everywhere")
	}
	report, err := svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Stats[0].Count != 1 {
		t.Errorf("bucket count: %d, want 1", report.Stats[0].Count)
	}
	// The rank history still shows all five polls.
	if got := len(report.Stats[0].Titles[0].Ranks); got != 5 {
		t.Errorf("rank history: %d entries, want 5", got)
	}
}

func TestService_IncrementalMode(t *testing.T) {
	// WHAT: Incremental reports cover only the latest poll and never carry
	// a new-title section.
	// WHY: The slice-only view plus suppressed delta is the mode contract.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai early story")
	ingest(t, svc, "rocket late story")

	report, err := svc.BuildReport(ctx, testDay, ModeIncremental)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.TotalTitles != 1 {
		t.Fatalf("incremental slice titles: %d, want 1", report.TotalTitles)
	}
	if report.Stats[0].Word != "space" {
		t.Errorf("bucket: %q, want space", report.Stats[0].Word)
	}
	if len(report.NewTitles) != 0 || report.TotalNewCount != 0 {
		t.Error("incremental report carries new titles")
	}
}

func TestService_InvalidInputs(t *testing.T) {
	// WHAT: Bad day strings and unknown modes map to sentinel errors.
	// WHY: Transports use errors.Is to pick status codes.
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BuildReport(ctx, "30/08/2026", ModeDaily); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad day: %v", err)
	}
	if _, err := svc.BuildReport(ctx, testDay, ReportMode("hourly")); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("bad mode: %v", err)
	}
	if _, err := svc.IngestSnapshot(ctx, testDay, []Observation{{Title: "no source", Rank: 1}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing source id: %v", err)
	}
}

func TestService_FailedSourcesPassthrough(t *testing.T) {
	// WHAT: Recorded fetch failures surface in the report untouched.
	// WHY: One broken upstream must not block reporting on the others.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai resilient")
	if err := svc.RecordFetchFailure(ctx, testDay, "weibo"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	report, err := svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.FailedIDs) != 1 || report.FailedIDs[0] != "weibo" {
		t.Errorf("failed ids: %v", report.FailedIDs)
	}
}

func TestService_SourceNames(t *testing.T) {
	// WHAT: Registered sources render display names; unknown ids fall back
	// to the raw id.
	// WHY: An unregistered source must not break report assembly.
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.UpsertSource(ctx, "hn", "Hacker News"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ingest(t, svc, "ai named")

	report, err := svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := report.Stats[0].Titles[0].SourceName; got != "Hacker News" {
		t.Errorf("source name: %q", got)
	}
}

func TestService_LatestNews(t *testing.T) {
	// WHAT: LatestNews returns only the most recent poll, in poll order.
	// WHY: The "what is on the boards right now" query must not mix cycles.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai old cycle")
	ingest(t, svc, "rocket fresh one", "ai fresh two")

	entries, err := svc.LatestNews(ctx, 0)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: %d, want 2", len(entries))
	}
	if entries[0].Title != "rocket fresh one" || entries[1].Title != "ai fresh two" {
		t.Errorf("order: %q, %q", entries[0].Title, entries[1].Title)
	}
}

func TestService_TrendingTopicsLimit(t *testing.T) {
	// WHAT: TrendingTopics truncates to the requested limit.
	// WHY: MCP clients ask for small top-N lists.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai one", "ai two", "rocket one")
	stats, err := svc.TrendingTopics(ctx, testDay, 1)
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(stats) != 1 || stats[0].Word != "ai" {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestService_IngestFeed(t *testing.T) {
	// WHAT: An RSS document ingests as one poll with feed positions as
	// ranks and the feed title as the source name.
	// WHY: RSS is a first-class ingestion path next to JSON snapshots.
	svc := newTestService(t)
	ctx := context.Background()

	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Tech Feed</title>
<item><title>ai tops the feed</title><link>https://a</link></item>
<item><title>rocket second</title><link>https://b</link></item>
</channel></rss>`

	n, err := svc.IngestFeed(ctx, testDay, "techfeed", []byte(rss))
	if err != nil {
		t.Fatalf("ingest feed: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored: %d", n)
	}

	entries, err := svc.NewsByDate(ctx, testDay, []string{"techfeed"}, 0)
	if err != nil {
		t.Fatalf("by date: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: %d", len(entries))
	}
	if entries[0].Ranks[0] != 1 || entries[1].Ranks[0] != 2 {
		t.Errorf("feed ranks: %v, %v", entries[0].Ranks, entries[1].Ranks)
	}
	if entries[0].SourceName != "Tech Feed" {
		t.Errorf("source name from feed title: %q", entries[0].SourceName)
	}
}

func TestService_ExportCSV(t *testing.T) {
	// WHAT: CSV export carries a header plus one line per observation.
	// WHY: Export is the spreadsheet-facing contract.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai exported")

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, &buf, testDay, testDay, nil, 0); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: %d\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "day,time,source_id") {
		t.Errorf("header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "ai exported") {
		t.Errorf("row: %q", lines[1])
	}
}

func TestService_RenderHTML(t *testing.T) {
	// WHAT: The HTML report renders bucket and title text with markup from
	// scraped titles stripped.
	// WHY: Titles are untrusted input on an HTML surface.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai <script>alert(1)</script> hype")

	var buf bytes.Buffer
	if err := svc.RenderHTML(ctx, &buf, testDay, ModeDaily); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "hype") {
		t.Error("title text missing from page")
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("script tag survived sanitization")
	}
}

func TestService_SystemStatus(t *testing.T) {
	// WHAT: Status reflects store counters, rule config, and last report.
	// WHY: This is the health surface operators and MCP clients poll.
	svc := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "ai status check")
	if _, err := svc.BuildReport(ctx, testDay, ModeDaily); err != nil {
		t.Fatalf("build: %v", err)
	}

	status, err := svc.SystemStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Store.Observations != 1 || status.Store.Days != 1 {
		t.Errorf("store stats: %+v", status.Store)
	}
	if status.RuleGroups != 2 {
		t.Errorf("rule groups: %d", status.RuleGroups)
	}
	if status.LastReport == nil || status.LastReport.Day != testDay {
		t.Errorf("last report: %+v", status.LastReport)
	}
	if !status.NewTracking {
		t.Error("new tracking should default on")
	}
}

func TestService_DisableNewTracking(t *testing.T) {
	// WHAT: With tracking disabled, no report ever carries new titles even
	// after a baseline exists.
	// WHY: The feature switch must hold across the whole lifecycle.
	db := dbopen.OpenMemory(t)
	svc, err := New(db, &Config{RankThreshold: 5, DisableNewTracking: true}, nil,
		WithRules(mustRules(t, "groups:\n  - label: ai\n    any_of: [ai]\n")),
		WithClock(func() time.Time { return at(12, 0) }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()
	ctx := context.Background()

	ingest(t, svc, "ai first")
	if _, err := svc.BuildReport(ctx, testDay, ModeDaily); err != nil {
		t.Fatalf("first: %v", err)
	}
	ingest(t, svc, "ai first", "ai second")
	report, err := svc.BuildReport(ctx, testDay, ModeDaily)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if report.TotalNewCount != 0 || len(report.NewTitles) != 0 {
		t.Errorf("tracking disabled but new titles present: %d", report.TotalNewCount)
	}
}

func TestService_RuleReloadDuringQueries(t *testing.T) {
	// WHAT: Rule reloads racing keyword queries and status reads complete
	// with a consistent rule set.
	// WHY: Reload and the read surface are served concurrently over HTTP
	// and MCP; the active set is swapped under the service mutex and must
	// be read the same way.
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	rulesYAML := []byte("groups:\n  - label: ai\n    any_of: [ai]\n")
	if err := os.WriteFile(rulesPath, rulesYAML, 0o644); err != nil {
		t.Fatal(err)
	}

	db := dbopen.OpenMemory(t)
	svc, err := New(db, &Config{RankThreshold: 5, RulesPath: rulesPath}, nil,
		WithClock(func() time.Time { return at(12, 0) }))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	ingest(t, svc, "ai breakthrough")

	var wg sync.WaitGroup
	for range [50]int{} {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if err := svc.ReloadRules(); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.KeywordStats(context.Background(), testDay); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			status, err := svc.SystemStatus(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			if status.RuleGroups != 1 {
				t.Errorf("rule groups: %d", status.RuleGroups)
			}
		}()
	}
	wg.Wait()
}
