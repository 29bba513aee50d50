package trend

// Config configures the trend service.
//
// Boolean knobs are phrased as Disable* so the zero value keeps both the
// new-title section and baseline tracking on, which is the behaviour
// almost every deployment wants.
type Config struct {
	// RulesPath points to the keyword rules YAML. A missing file yields an
	// empty rule set (no buckets, no filtering), not an error.
	RulesPath string

	// RankThreshold separates "high" from "normal" rank tiers.
	RankThreshold int

	// DisableNewSection hides the new-title section of reports while the
	// baseline keeps being tracked and extended.
	DisableNewSection bool

	// DisableNewTracking turns off baseline diffing entirely: no report
	// ever carries new titles.
	DisableNewTracking bool

	// RetentionDays prunes observations older than this many days at
	// rollover. 0 keeps everything.
	RetentionDays int

	// RolloverSpec is the cron expression for the daily rollover job.
	RolloverSpec string
}

func (c *Config) defaults() {
	if c.RankThreshold <= 0 {
		c.RankThreshold = 10
	}
	if c.RolloverSpec == "" {
		c.RolloverSpec = "5 0 * * *"
	}
}

func defaultConfig() *Config {
	return &Config{
		RankThreshold: 10,
		RolloverSpec:  "5 0 * * *",
	}
}
