package trend

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/trendradar/idgen"
	"github.com/hazyhaar/trendradar/trend/internal/export"
	"github.com/hazyhaar/trendradar/trend/internal/feed"
	"github.com/hazyhaar/trendradar/trend/internal/render"
	"github.com/hazyhaar/trendradar/trend/internal/store"
)

const dayFormat = "2006-01-02"

// Service is the main trend orchestrator: it owns the store, the keyword
// rules, and the baseline lifecycle, and exposes every read and write
// operation the transports forward to.
type Service struct {
	store  *store.Store
	rules  *RuleSet
	config *Config
	logger *slog.Logger
	newID  func() string
	clock  func() time.Time
	cron   *cron.Cron

	// mu serializes baseline load/extend per reporting window. Reports can
	// be requested concurrently over HTTP and MCP; without this two racing
	// builds could both see a title as new.
	mu sync.Mutex
}

// New creates a trend Service on an already-opened database. The schema is
// applied and rules are loaded from cfg.RulesPath.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	rules, err := LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	svc := &Service{
		store:  store.NewStore(db),
		rules:  rules,
		config: cfg,
		logger: logger,
		newID:  idgen.New,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.cron = cron.New()
	if _, err := svc.cron.AddFunc(cfg.RolloverSpec, svc.rollover); err != nil {
		return nil, fmt.Errorf("rollover spec %q: %w", cfg.RolloverSpec, err)
	}

	return svc, nil
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithClock overrides the time source. Used in tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(svc *Service) { svc.clock = fn }
}

// WithIDGenerator overrides the ID generator. Used in tests.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(svc *Service) { svc.newID = fn }
}

// WithRules replaces the rule set loaded from disk.
func WithRules(rs *RuleSet) ServiceOption {
	return func(svc *Service) { svc.rules = rs }
}

// Start launches the rollover scheduler. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	svc.cron.Start()
	go func() {
		<-ctx.Done()
		svc.cron.Stop()
	}()
	svc.logger.Info("trend: started", "rollover", svc.config.RolloverSpec)
}

// Close stops the scheduler.
func (svc *Service) Close() error {
	svc.cron.Stop()
	svc.logger.Info("trend: closed")
	return nil
}

// Rules returns the active rule set. The returned set is never mutated
// after load; reloads swap the pointer under the service mutex, so the
// snapshot taken here stays safe to read.
func (svc *Service) Rules() *RuleSet {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.rules
}

// ReloadRules re-reads the rules file and swaps the active rule set.
func (svc *Service) ReloadRules() error {
	rules, err := LoadRules(svc.config.RulesPath)
	if err != nil {
		return fmt.Errorf("reload rules: %w", err)
	}
	svc.mu.Lock()
	svc.rules = rules
	svc.mu.Unlock()
	svc.logger.Info("trend: rules reloaded", "groups", len(rules.Groups))
	return nil
}

// --- Sources ---

// UpsertSource registers a source platform or refreshes its display name.
func (svc *Service) UpsertSource(ctx context.Context, id, name string) error {
	if id == "" {
		return fmt.Errorf("%w: source id required", ErrInvalidInput)
	}
	if name == "" {
		name = id
	}
	return svc.store.UpsertSource(ctx, id, name)
}

// ListSources returns all registered sources.
func (svc *Service) ListSources(ctx context.Context) ([]*store.Source, error) {
	return svc.store.ListSources(ctx)
}

// RecordFetchFailure marks a source as failed for a day, so reports can
// surface it without blocking aggregation of the sources that worked.
func (svc *Service) RecordFetchFailure(ctx context.Context, day, sourceID string) error {
	day, err := svc.resolveDay(ctx, day)
	if err != nil {
		return err
	}
	return svc.store.RecordFailure(ctx, day, sourceID)
}

// --- Ingestion ---

// IngestSnapshot stores one poll of observations under the given day
// (empty day means today). Returns the number of rows stored. Rows with
// empty titles or non-positive ranks are stored as-is; normalization
// rejects them at report time, keeping ingestion a pure passthrough.
func (svc *Service) IngestSnapshot(ctx context.Context, day string, observations []Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}
	day, err := svc.resolveDay(ctx, day)
	if err != nil {
		return 0, err
	}

	now := svc.clock()
	rows := make([]*store.Observation, 0, len(observations))
	for _, o := range observations {
		if o.SourceID == "" {
			return 0, fmt.Errorf("%w: observation without source id", ErrInvalidInput)
		}
		at := o.Timestamp
		if at.IsZero() {
			at = now
		}
		rows = append(rows, &store.Observation{
			ID:         svc.newID(),
			SourceID:   o.SourceID,
			Title:      o.Title,
			Rank:       o.Rank,
			URL:        o.URL,
			MobileURL:  o.MobileURL,
			ObservedAt: at.UnixMilli(),
		})
	}

	pollID := svc.newID()
	if err := svc.store.InsertObservations(ctx, day, pollID, rows); err != nil {
		return 0, fmt.Errorf("insert observations: %w", err)
	}
	svc.logger.Info("trend: snapshot ingested",
		"day", day, "poll_id", pollID, "rows", len(rows))
	return len(rows), nil
}

// IngestFeed parses an RSS or Atom document and stores its items as one
// poll for the given source, ranked by feed position. The source is
// registered on first sight, named after the feed title.
func (svc *Service) IngestFeed(ctx context.Context, day, sourceID string, data []byte) (int, error) {
	if sourceID == "" {
		return 0, fmt.Errorf("%w: source id required", ErrInvalidInput)
	}
	parsed, err := feed.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	name := parsed.Title
	if name == "" {
		name = sourceID
	}
	if err := svc.store.UpsertSource(ctx, sourceID, name); err != nil {
		return 0, fmt.Errorf("upsert source: %w", err)
	}

	observations := make([]Observation, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		observations = append(observations, Observation{
			SourceID: sourceID,
			Title:    item.Title,
			Rank:     i + 1,
			URL:      item.Link,
		})
	}
	return svc.IngestSnapshot(ctx, day, observations)
}

// --- Reports ---

// BuildReport aggregates a day's observations into a ReportData for the
// given mode. Empty day means today.
//
// The baseline is loaded, diffed, and extended exactly once per call,
// under the service mutex. The baseline is extended in every mode, so an
// incremental run still prevents those titles from showing up as new in
// a later daily report.
func (svc *Service) BuildReport(ctx context.Context, day string, mode ReportMode) (*ReportData, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	day, err := svc.resolveDay(ctx, day)
	if err != nil {
		return nil, err
	}

	records, err := svc.recordsFor(ctx, day, mode)
	if err != nil {
		return nil, err
	}

	idToName, err := svc.store.IDToName(ctx)
	if err != nil {
		return nil, fmt.Errorf("source names: %w", err)
	}

	svc.mu.Lock()
	rules := svc.rules
	stats := Aggregate(records, rules, svc.config.RankThreshold, idToName)

	baseline, err := svc.loadBaseline(ctx, day)
	if err != nil {
		svc.mu.Unlock()
		return nil, err
	}
	delta := Diff(records, baseline, rules, mode, !svc.config.DisableNewTracking)

	keys := make([]store.KeyPair, 0, len(records))
	for key := range records {
		keys = append(keys, store.KeyPair{SourceID: key.SourceID, Title: key.Title})
	}
	if err := svc.store.ExtendBaseline(ctx, day, keys); err != nil {
		svc.mu.Unlock()
		return nil, fmt.Errorf("extend baseline: %w", err)
	}
	svc.mu.Unlock()

	failedIDs, err := svc.store.ListFailures(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}

	report, err := Assemble(stats, delta, failedIDs, mode, svc.config.RankThreshold,
		!svc.config.DisableNewSection, idToName)
	if err != nil {
		return nil, err
	}

	entry := &store.ReportLogEntry{
		ID:          svc.newID(),
		Day:         day,
		Mode:        string(mode),
		TotalTitles: report.TotalTitles,
		NewCount:    report.TotalNewCount,
		GeneratedAt: svc.clock().UnixMilli(),
	}
	if err := svc.store.InsertReportLog(ctx, entry); err != nil {
		svc.logger.Warn("trend: report log insert failed", "error", err)
	}

	svc.logger.Info("trend: report built", "day", day, "mode", mode,
		"titles", report.TotalTitles, "new", report.TotalNewCount)
	return report, nil
}

// LatestNews returns the titles of the most recent poll, in poll order.
func (svc *Service) LatestNews(ctx context.Context, limit int) ([]TitleEntry, error) {
	day, err := svc.store.LatestDay(ctx)
	if err != nil {
		return nil, err
	}
	if day == "" {
		return []TitleEntry{}, nil
	}
	rows, err := svc.store.LatestSlice(ctx, day)
	if err != nil {
		return nil, err
	}
	return svc.entriesFromRows(ctx, rows, limit)
}

// NewsByDate returns a day's titles, optionally restricted to sources.
func (svc *Service) NewsByDate(ctx context.Context, day string, sourceIDs []string, limit int) ([]TitleEntry, error) {
	day, err := svc.resolveDay(ctx, day)
	if err != nil {
		return nil, err
	}
	rows, err := svc.store.ObservationsInRange(ctx, day, day, sourceIDs, 0)
	if err != nil {
		return nil, err
	}
	return svc.entriesFromRows(ctx, rows, limit)
}

// TrendingTopics returns the day's top keyword buckets.
func (svc *Service) TrendingTopics(ctx context.Context, day string, limit int) ([]Stat, error) {
	stats, err := svc.KeywordStats(ctx, day)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// KeywordStats aggregates a full day against the keyword rules.
func (svc *Service) KeywordStats(ctx context.Context, day string) ([]Stat, error) {
	day, err := svc.resolveDay(ctx, day)
	if err != nil {
		return nil, err
	}
	records, err := svc.recordsFor(ctx, day, ModeDaily)
	if err != nil {
		return nil, err
	}
	idToName, err := svc.store.IDToName(ctx)
	if err != nil {
		return nil, err
	}
	return Aggregate(records, svc.Rules(), svc.config.RankThreshold, idToName), nil
}

// Status is the system health summary exposed over HTTP and MCP.
type Status struct {
	Store         *store.Stats          `json:"store"`
	LastReport    *store.ReportLogEntry `json:"last_report,omitempty"`
	RuleGroups    int                   `json:"rule_groups"`
	GlobalFilters int                   `json:"global_filters"`
	RankThreshold int                   `json:"rank_threshold"`
	NewTracking   bool                  `json:"new_tracking"`
}

// SystemStatus returns aggregate counters and the active configuration.
func (svc *Service) SystemStatus(ctx context.Context) (*Status, error) {
	stats, err := svc.store.GlobalStats(ctx)
	if err != nil {
		return nil, err
	}
	last, err := svc.store.LastReport(ctx)
	if err != nil {
		return nil, err
	}
	rules := svc.Rules()
	return &Status{
		Store:         stats,
		LastReport:    last,
		RuleGroups:    len(rules.Groups),
		GlobalFilters: len(rules.GlobalFilters),
		RankThreshold: svc.config.RankThreshold,
		NewTracking:   !svc.config.DisableNewTracking,
	}, nil
}

// --- Export ---

// ExportCSV writes observation history for an inclusive day range as CSV.
// Empty fromDay and toDay default to today.
func (svc *Service) ExportCSV(ctx context.Context, w io.Writer, fromDay, toDay string, sourceIDs []string, limit int) error {
	rows, err := svc.exportRows(ctx, fromDay, toDay, sourceIDs, limit)
	if err != nil {
		return err
	}
	return export.CSV(w, rows)
}

// ExportJSON writes observation history for an inclusive day range as JSON.
func (svc *Service) ExportJSON(ctx context.Context, w io.Writer, fromDay, toDay string, sourceIDs []string, limit int) error {
	rows, err := svc.exportRows(ctx, fromDay, toDay, sourceIDs, limit)
	if err != nil {
		return err
	}
	return export.JSON(w, rows)
}

func (svc *Service) exportRows(ctx context.Context, fromDay, toDay string, sourceIDs []string, limit int) ([]export.Row, error) {
	fromDay, err := svc.resolveDay(ctx, fromDay)
	if err != nil {
		return nil, err
	}
	toDay, err = svc.resolveDay(ctx, toDay)
	if err != nil {
		return nil, err
	}
	if fromDay > toDay {
		return nil, fmt.Errorf("%w: range %s..%s", ErrInvalidInput, fromDay, toDay)
	}

	observations, err := svc.store.ObservationsInRange(ctx, fromDay, toDay, sourceIDs, limit)
	if err != nil {
		return nil, err
	}
	idToName, err := svc.store.IDToName(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]export.Row, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, export.Row{
			Day:        o.Day,
			Time:       time.UnixMilli(o.ObservedAt).Format("15:04"),
			SourceID:   o.SourceID,
			SourceName: sourceName(idToName, o.SourceID),
			Title:      o.Title,
			Rank:       o.Rank,
			URL:        o.URL,
		})
	}
	return rows, nil
}

// RenderHTML builds a report and writes it as a standalone HTML page.
func (svc *Service) RenderHTML(ctx context.Context, w io.Writer, day string, mode ReportMode) error {
	report, err := svc.BuildReport(ctx, day, mode)
	if err != nil {
		return err
	}
	day, err = svc.resolveDay(ctx, day)
	if err != nil {
		return err
	}

	page := &render.Page{
		Day:           day,
		Mode:          string(report.Mode),
		GeneratedAt:   report.GeneratedAt.Format("2006-01-02 15:04:05"),
		TotalTitles:   report.TotalTitles,
		TotalNewCount: report.TotalNewCount,
		FailedSources: report.FailedIDs,
	}
	for _, stat := range report.Stats {
		page.Stats = append(page.Stats, render.StatView{
			Word:       stat.Word,
			Count:      stat.Count,
			Percentage: stat.Percentage,
			Titles:     titleViews(stat.Titles),
		})
	}
	for _, group := range report.NewTitles {
		page.NewSections = append(page.NewSections, render.SectionView{
			SourceName: group.SourceName,
			Titles:     titleViews(group.Titles),
		})
	}
	return render.HTML(w, page)
}

func titleViews(entries []TitleEntry) []render.TitleView {
	views := make([]render.TitleView, 0, len(entries))
	for _, e := range entries {
		views = append(views, render.TitleView{
			Title:       e.Title,
			SourceName:  e.SourceName,
			Ranks:       ranksDisplay(e.Ranks),
			Tier:        e.Tier,
			TimeDisplay: e.TimeDisplay,
			Count:       e.Count,
			URL:         e.URL,
			IsNew:       e.IsNew,
		})
	}
	return views
}

// ranksDisplay compresses a rank history to "best" or "best..worst".
func ranksDisplay(ranks []int) string {
	if len(ranks) == 0 {
		return ""
	}
	min, max := ranks[0], ranks[0]
	for _, r := range ranks[1:] {
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}
	if min == max {
		return strconv.Itoa(min)
	}
	return strconv.Itoa(min) + ".." + strconv.Itoa(max)
}

// --- Internal ---

// recordsFor loads the observation slice that a mode covers and
// normalizes it into title records.
func (svc *Service) recordsFor(ctx context.Context, day string, mode ReportMode) (map[Key]*TitleRecord, error) {
	var rows []*store.Observation
	var err error
	switch mode {
	case ModeIncremental:
		rows, err = svc.store.LatestSlice(ctx, day)
	case ModeCurrent:
		rows, err = svc.store.CurrentSlice(ctx, day)
	default:
		rows, err = svc.store.ListObservations(ctx, day)
	}
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	return Normalize(observationsFromRows(rows), svc.logger), nil
}

func (svc *Service) loadBaseline(ctx context.Context, day string) (*Baseline, error) {
	keys, exists, err := svc.store.LoadBaseline(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	// Exists stays false for a never-persisted day: the first run must not
	// declare everything new.
	baseline := &Baseline{Day: day, Known: make(map[Key]struct{}, len(keys))}
	if !exists {
		return baseline, nil
	}
	baseline.Exists = true
	for _, k := range keys {
		baseline.Known[Key{SourceID: k.SourceID, Title: k.Title}] = struct{}{}
	}
	return baseline, nil
}

func (svc *Service) entriesFromRows(ctx context.Context, rows []*store.Observation, limit int) ([]TitleEntry, error) {
	records := Normalize(observationsFromRows(rows), svc.logger)
	idToName, err := svc.store.IDToName(ctx)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		key Key
		rec *TitleRecord
	}
	ordered := make([]keyed, 0, len(records))
	for key, rec := range records {
		ordered = append(ordered, keyed{key: key, rec: rec})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].rec.Seq < ordered[j].rec.Seq })

	entries := make([]TitleEntry, 0, len(ordered))
	for _, k := range ordered {
		if limit > 0 && len(entries) >= limit {
			break
		}
		entries = append(entries, TitleEntry{
			Title:         k.key.Title,
			SourceID:      k.key.SourceID,
			SourceName:    sourceName(idToName, k.key.SourceID),
			Ranks:         k.rec.Ranks,
			RankThreshold: svc.config.RankThreshold,
			Tier:          k.rec.Tier(svc.config.RankThreshold),
			TimeDisplay:   timeDisplay(k.rec),
			Count:         k.rec.Count,
			URL:           k.rec.URL,
			MobileURL:     k.rec.MobileURL,
		})
	}
	return entries, nil
}

// resolveDay validates a YYYY-MM-DD day, defaulting empty to today.
func (svc *Service) resolveDay(_ context.Context, day string) (string, error) {
	if day == "" {
		return svc.clock().Format(dayFormat), nil
	}
	if _, err := time.Parse(dayFormat, day); err != nil {
		return "", fmt.Errorf("%w: day %q", ErrInvalidInput, day)
	}
	return day, nil
}

// rollover runs shortly after midnight: prunes old windows per retention.
func (svc *Service) rollover() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if svc.config.RetentionDays <= 0 {
		return
	}
	cutoff := svc.clock().AddDate(0, 0, -svc.config.RetentionDays).Format(dayFormat)
	dropped, err := svc.store.PruneBefore(ctx, cutoff)
	if err != nil {
		svc.logger.Error("trend: rollover prune failed", "error", err)
		return
	}
	svc.logger.Info("trend: rollover", "cutoff", cutoff, "dropped", dropped)
}

func observationsFromRows(rows []*store.Observation) []Observation {
	obs := make([]Observation, 0, len(rows))
	for _, r := range rows {
		obs = append(obs, Observation{
			SourceID:  r.SourceID,
			Title:     r.Title,
			Rank:      r.Rank,
			Timestamp: time.UnixMilli(r.ObservedAt),
			URL:       r.URL,
			MobileURL: r.MobileURL,
		})
	}
	return obs
}
