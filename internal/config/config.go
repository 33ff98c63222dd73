// Package config loads and validates reportfinder configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/table"
)

// ErrInvalid marks a configuration that cannot be used. A fresh template is
// written next to the offending file.
var ErrInvalid = errors.New("invalid configuration")

// Recognised backends.
var (
	SearchBackends = []string{"duckduckgo", "serpapi", "tavily", "bing"}
	QuotaBackends  = []string{"csv", "sqlite", "postgres", "memory"}
)

// Config captures all knobs loaded via Viper.
type Config struct {
	DailyRequestLimit     int    `mapstructure:"daily_request_limit"`
	MaxResultsPerQuery    int    `mapstructure:"max_results_per_query"`
	MaxSecondaryResults   int    `mapstructure:"max_secondary_results"`
	OutputPath            string `mapstructure:"output_path"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`

	Search    SearchConfig    `mapstructure:"search"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// SearchConfig selects and configures the search backend.
type SearchConfig struct {
	Backend           string           `mapstructure:"backend"`
	ProcessingRetries int              `mapstructure:"processing_retries"`
	ProcessingBackoff time.Duration    `mapstructure:"processing_backoff"`
	DuckDuckGo        DuckDuckGoConfig `mapstructure:"duckduckgo"`
	SerpAPI           SerpAPIConfig    `mapstructure:"serpapi"`
	Tavily            TavilyConfig     `mapstructure:"tavily"`
	Bing              BingConfig       `mapstructure:"bing"`
}

// DuckDuckGoConfig configures the HTML endpoint scraper.
type DuckDuckGoConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Region  string `mapstructure:"region"`
}

// SerpAPIConfig configures the SerpApi Google engine.
type SerpAPIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	GoogleDomain string `mapstructure:"google_domain"`
	Country      string `mapstructure:"country"`
	Language     string `mapstructure:"language"`
}

// TavilyConfig configures the Tavily API.
type TavilyConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// BingConfig configures the Bing RSS endpoint.
type BingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Market  string `mapstructure:"market"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	AcceptLanguage   string  `mapstructure:"accept_language"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
	RateLimitPerHost float64 `mapstructure:"rate_limit_per_host"`
	Burst            int     `mapstructure:"burst"`
	MaxBodyBytes     int     `mapstructure:"max_body_bytes"`
}

// QuotaConfig selects the daily request ledger.
type QuotaConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// DelayConfig is a jitter window.
type DelayConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// Range converts the window for the pipeline.
func (d DelayConfig) Range() discovery.DelayRange {
	return discovery.DelayRange{Min: d.Min, Max: d.Max}
}

func (d DelayConfig) valid() bool {
	return d.Min >= 0 && d.Max >= d.Min
}

// PipelineConfig bounds per-entity work.
type PipelineConfig struct {
	MaxPages        int         `mapstructure:"max_pages"`
	GoodEnoughScore int         `mapstructure:"good_enough_score"`
	QueryDelay      DelayConfig `mapstructure:"query_delay"`
	PageDelay       DelayConfig `mapstructure:"page_delay"`
	EntityDelay     DelayConfig `mapstructure:"entity_delay"`
}

// DiscoveryConfig holds the keyword sets and the template table location.
type DiscoveryConfig struct {
	ExcludedDomains   []string `mapstructure:"excluded_domains"`
	RelevanceKeywords []string `mapstructure:"relevance_keywords"`
	ReportKeywords    []string `mapstructure:"report_keywords"`
	TemplatesFile     string   `mapstructure:"templates_file"`
}

// InputConfig describes the entity table.
type InputConfig struct {
	Delimiter string `mapstructure:"delimiter"`
}

// OutputConfig describes the output table and its optional mirror.
type OutputConfig struct {
	Delimiter string         `mapstructure:"delimiter"`
	Postgres  PostgresOutput `mapstructure:"postgres"`
}

// PostgresOutput mirrors rows into Postgres when DSN is set.
type PostgresOutput struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// ArchiveConfig keeps fetched pages when Dir is set.
type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus exports.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
	ListenAddr   string `mapstructure:"listen_addr"`
}

// RequestTimeout returns the per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SetDefaults registers every default on v. Durations are strings so the
// generated template stays readable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("daily_request_limit", 100)
	v.SetDefault("max_results_per_query", 10)
	v.SetDefault("max_secondary_results", discovery.DefaultMaxSecondary)
	v.SetDefault("output_path", "discovery.csv")
	v.SetDefault("request_timeout_seconds", 30)

	v.SetDefault("search.backend", "duckduckgo")
	v.SetDefault("search.processing_retries", discovery.DefaultProcessingAttempts)
	v.SetDefault("search.processing_backoff", "5s")
	v.SetDefault("search.duckduckgo.base_url", "")
	v.SetDefault("search.duckduckgo.region", "")
	v.SetDefault("search.serpapi.api_key", "")
	v.SetDefault("search.serpapi.google_domain", "google.com")
	v.SetDefault("search.serpapi.country", "")
	v.SetDefault("search.serpapi.language", "en")
	v.SetDefault("search.tavily.api_key", "")
	v.SetDefault("search.tavily.base_url", "")
	v.SetDefault("search.bing.base_url", "")
	v.SetDefault("search.bing.market", "")

	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.accept_language", "")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.rate_limit_per_host", 0.5)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)

	v.SetDefault("quota.backend", "csv")
	v.SetDefault("quota.path", "api_usage.csv")
	v.SetDefault("quota.dsn", "")
	v.SetDefault("quota.table", "quota_usage")

	v.SetDefault("pipeline.max_pages", discovery.DefaultMaxPages)
	v.SetDefault("pipeline.good_enough_score", discovery.DefaultGoodEnoughScore)
	v.SetDefault("pipeline.query_delay.min", "2s")
	v.SetDefault("pipeline.query_delay.max", "3s")
	v.SetDefault("pipeline.page_delay.min", "2s")
	v.SetDefault("pipeline.page_delay.max", "3s")
	v.SetDefault("pipeline.entity_delay.min", "3s")
	v.SetDefault("pipeline.entity_delay.max", "5s")

	v.SetDefault("discovery.excluded_domains", discovery.DefaultExcludedDomains)
	v.SetDefault("discovery.relevance_keywords", discovery.DefaultRelevanceKeywords)
	v.SetDefault("discovery.report_keywords", discovery.DefaultExtractorConfig().ReportKeywords)
	v.SetDefault("discovery.templates_file", "")

	v.SetDefault("input.delimiter", "auto")
	v.SetDefault("output.delimiter", ",")
	v.SetDefault("output.postgres.dsn", "")
	v.SetDefault("output.postgres.table", "discovery_rows")
	v.SetDefault("archive.dir", "")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.listen_addr", ":9090")
}

// Load registers defaults, reads the config file if one is set or found, and
// returns the validated Config. Parse and validation failures wrap ErrInvalid.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	if explicit := v.ConfigFileUsed(); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: read config: %v", ErrInvalid, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.DailyRequestLimit > 0, "daily_request_limit must be > 0")
	check(c.MaxResultsPerQuery > 0, "max_results_per_query must be > 0")
	check(c.MaxSecondaryResults >= 0, "max_secondary_results must be >= 0")
	check(strings.TrimSpace(c.OutputPath) != "", "output_path must be set")
	check(c.RequestTimeoutSeconds > 0, "request_timeout_seconds must be > 0")

	check(oneOf(c.Search.Backend, SearchBackends), "search.backend must be one of "+strings.Join(SearchBackends, ", "))
	switch c.Search.Backend {
	case "serpapi":
		check(hasCredential(c.Search.SerpAPI.APIKey), "search.serpapi.api_key must be set for the serpapi backend")
	case "tavily":
		check(hasCredential(c.Search.Tavily.APIKey), "search.tavily.api_key must be set for the tavily backend")
	}
	check(c.Search.ProcessingRetries >= 0, "search.processing_retries must be >= 0")
	check(c.Search.ProcessingBackoff >= 0, "search.processing_backoff must be >= 0")

	check(c.HTTP.RateLimitPerHost >= 0, "http.rate_limit_per_host must be >= 0")
	check(c.HTTP.Burst >= 0, "http.burst must be >= 0")
	check(c.HTTP.MaxBodyBytes >= 0, "http.max_body_bytes must be >= 0")

	check(oneOf(c.Quota.Backend, QuotaBackends), "quota.backend must be one of "+strings.Join(QuotaBackends, ", "))
	switch c.Quota.Backend {
	case "csv", "sqlite":
		check(strings.TrimSpace(c.Quota.Path) != "", "quota.path must be set for the "+c.Quota.Backend+" backend")
	case "postgres":
		check(strings.TrimSpace(c.Quota.DSN) != "", "quota.dsn must be set for the postgres backend")
	}

	check(c.Pipeline.MaxPages > 0, "pipeline.max_pages must be > 0")
	check(c.Pipeline.GoodEnoughScore > 0, "pipeline.good_enough_score must be > 0")
	check(c.Pipeline.QueryDelay.valid(), "pipeline.query_delay must satisfy 0 <= min <= max")
	check(c.Pipeline.PageDelay.valid(), "pipeline.page_delay must satisfy 0 <= min <= max")
	check(c.Pipeline.EntityDelay.valid(), "pipeline.entity_delay must satisfy 0 <= min <= max")

	_, inErr := table.ParseDelimiter(c.Input.Delimiter)
	check(inErr == nil, "input.delimiter must be auto, comma, semicolon, tab or pipe")
	outDelim, outErr := table.ParseDelimiter(c.Output.Delimiter)
	check(outErr == nil, "output.delimiter must be comma, semicolon, tab or pipe")
	check(outErr != nil || outDelim != 0, "output.delimiter cannot be auto")

	check(c.Logging.Level == "" || oneOf(strings.ToLower(c.Logging.Level), []string{"debug", "info", "warn", "error"}),
		"logging.level must be debug, info, warn or error")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func hasCredential(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && key != placeholderSerpAPIKey
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
