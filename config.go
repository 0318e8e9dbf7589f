// CLAUDE:SUMMARY YAML configuration: storage paths, rate budgets, relevance vocabulary, per-source settings.
package mirador

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/mirador/internal/govern"
	"github.com/hazyhaar/mirador/internal/relevance"
	"github.com/hazyhaar/mirador/internal/sources/forum"
	"github.com/hazyhaar/mirador/internal/sources/regionfeed"
	"github.com/hazyhaar/mirador/internal/sources/storefront"
)

// RateBudget is the per-source request budget in operator-friendly units.
type RateBudget struct {
	// Burst is the token bucket capacity. Default 10.
	Burst float64 `yaml:"burst"`
	// PerMinute is the sustained request rate. Default 30.
	PerMinute float64 `yaml:"per_minute"`
}

func (b RateBudget) toGovern() govern.Budget {
	g := govern.Budget{MaxTokens: b.Burst}
	if b.PerMinute > 0 {
		g.RefillRate = b.PerMinute / 60
	}
	return g
}

// BrowserConfig is the stealth browser surface of the configuration.
type BrowserConfig struct {
	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL string `yaml:"remote_url"`
	// Headful disables headless mode.
	Headful bool `yaml:"headful"`
	// Proxy applied at browser launch.
	Proxy string `yaml:"proxy"`
	// WarmupURLs visited before real navigation.
	WarmupURLs []string `yaml:"warmup_urls"`
	// Disabled turns the browser phases off entirely.
	Disabled bool `yaml:"disabled"`
}

// RunConfig bounds a single collection run.
type RunConfig struct {
	// FullBudget is the wall-clock deadline for full-mode runs. Default 20m.
	FullBudget time.Duration `yaml:"full_budget"`
	// IncrementalBudget for incremental runs. Default 5m.
	IncrementalBudget time.Duration `yaml:"incremental_budget"`
	// FlushThreshold is the buffer size that forces a mid-run flush. Default 50.
	FlushThreshold int `yaml:"flush_threshold"`
}

// SourcesConfig holds the per-source settings. A source with its endpoint
// unset is simply not registered.
type SourcesConfig struct {
	Forum      forum.Config      `yaml:"forum"`
	Storefront storefront.Config `yaml:"storefront"`
	Regionfeed regionfeed.Config `yaml:"regionfeed"`
}

// Config is the full mirador configuration, loaded once at startup and
// treated as an immutable snapshot by every run.
type Config struct {
	// DBPath is the SQLite database file. Default data/mirador.db.
	DBPath string `yaml:"db_path"`
	// DataDir holds cookie jars and other working files. Default data.
	DataDir string `yaml:"data_dir"`
	// ListenAddr for the HTTP API. Default :8087.
	ListenAddr string `yaml:"listen_addr"`

	// Intervals maps source names to their scheduling interval. Default 1h.
	Intervals map[string]time.Duration `yaml:"intervals"`
	// DefaultInterval applies to sources without an Intervals entry.
	DefaultInterval time.Duration `yaml:"default_interval"`

	// Budgets maps source names to their rate budgets.
	Budgets map[string]RateBudget `yaml:"budgets"`

	// HTTPTimeout bounds each outbound request. Default 30s.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Relevance relevance.Config `yaml:"relevance"`
	Browser   BrowserConfig    `yaml:"browser"`
	Run       RunConfig        `yaml:"run"`
	Sources   SourcesConfig    `yaml:"sources"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/mirador.db"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8087"
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = time.Hour
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
}

// Validate rejects configurations that cannot possibly work. Validation
// failures at startup are the only errors allowed to be process-fatal.
func (c *Config) Validate() error {
	if c.Relevance.Brand == "" && len(c.Relevance.Terms) == 0 && len(c.Relevance.GenericTerms) == 0 {
		return fmt.Errorf("%w: relevance needs a brand, terms, or generic terms", ErrConfig)
	}
	if c.Sources.Forum.BaseURL == "" && c.Sources.Storefront.ReviewURL == "" && c.Sources.Regionfeed.FeedURL == "" {
		return fmt.Errorf("%w: no source endpoint configured", ErrConfig)
	}
	for name, b := range c.Budgets {
		if b.Burst < 0 || b.PerMinute < 0 {
			return fmt.Errorf("%w: budget %s: negative values", ErrConfig, name)
		}
	}
	return nil
}

// Interval returns a source's scheduling interval.
func (c *Config) Interval(source string) time.Duration {
	if d, ok := c.Intervals[source]; ok && d > 0 {
		return d
	}
	return c.DefaultInterval
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mirador: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("mirador: parse config: %w", err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
