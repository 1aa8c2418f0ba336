// Package config loads and validates linkcheck configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/net/http/httpguts"
)

// Startup validation failures. Each one aborts the run before crawling.
var (
	ErrMissingSeed        = errors.New("a seed url is required")
	ErrInvalidSeed        = errors.New("invalid seed url")
	ErrInvalidPattern     = errors.New("invalid exclude pattern")
	ErrInvalidHeader      = errors.New("invalid request header")
	ErrInvalidConcurrency = errors.New("max concurrent must be between 1 and 65535")
	ErrInvalidExtractor   = errors.New("extractor must be regex, html or dom")
)

const maxConcurrentUpperBound = 65535

// Config captures every knob loaded via Viper.
type Config struct {
	Seed     string         `mapstructure:"seed"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Pacing   PacingConfig   `mapstructure:"pacing"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Store    StoreConfig    `mapstructure:"store"`
	Progress ProgressConfig `mapstructure:"progress"`

	// Populated by Validate.
	SeedURL *url.URL       `mapstructure:"-"`
	Exclude *regexp.Regexp `mapstructure:"-"`
	Headers http.Header    `mapstructure:"-"`
}

// CrawlerConfig governs the crawl engine.
type CrawlerConfig struct {
	ExcludePattern string `mapstructure:"exclude_pattern"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	QueueDepth     int    `mapstructure:"queue_depth"`
	MinBodyBytes   int    `mapstructure:"min_body_bytes"`
	Extractor      string `mapstructure:"extractor"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	// Headers are "Name: value" pairs added to every request.
	Headers            []string      `mapstructure:"headers"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
	// MaxRPS caps requests per second to the crawled host; 0 disables the cap.
	MaxRPS float64 `mapstructure:"max_rps"`
	Burst  int     `mapstructure:"burst"`
}

// PacingConfig tunes the admission governor, in seconds.
type PacingConfig struct {
	InitialLatency float64 `mapstructure:"initial_latency"`
	Offset         float64 `mapstructure:"offset"`
	Floor          float64 `mapstructure:"floor"`
}

// OutputConfig controls the console report.
type OutputConfig struct {
	Verbose bool `mapstructure:"verbose"`
	NoColor bool `mapstructure:"no_color"`
}

// LoggingConfig toggles zap development features and the diagnostic level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the status server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig enables the Postgres result export when DSN is set.
type StoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Migrate         bool          `mapstructure:"migrate"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ProgressConfig sizes the event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the startup inputs and fills SeedURL, Exclude and Headers.
func (c *Config) Validate() error {
	seed, err := ParseSeed(c.Seed)
	if err != nil {
		return err
	}
	c.SeedURL = seed

	c.Exclude = nil
	if c.Crawler.ExcludePattern != "" {
		re, err := regexp.Compile(c.Crawler.ExcludePattern)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		c.Exclude = re
	}

	headers, err := ParseHeaders(c.HTTP.Headers)
	if err != nil {
		return err
	}
	c.Headers = headers

	if c.Crawler.MaxConcurrent < 1 || c.Crawler.MaxConcurrent > maxConcurrentUpperBound {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Crawler.MaxConcurrent)
	}
	switch strings.ToLower(c.Crawler.Extractor) {
	case "", "regex", "html", "dom":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidExtractor, c.Crawler.Extractor)
	}
	if c.Crawler.QueueDepth < 0 {
		return fmt.Errorf("crawler.queue_depth must be >= 0")
	}
	if c.HTTP.MaxRPS < 0 {
		return fmt.Errorf("http.max_rps must be >= 0")
	}
	if c.Pacing.Floor < 0 || c.Pacing.Offset < 0 || c.Pacing.InitialLatency < 0 {
		return fmt.Errorf("pacing values must be >= 0")
	}
	return nil
}

// ParseSeed accepts an absolute http or https URL.
func ParseSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingSeed
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q must use http or https", ErrInvalidSeed, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidSeed, raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// ParseHeaders turns "Name: value" pairs into a header set. Only the first
// colon separates name from value, so values may contain colons.
func ParseHeaders(pairs []string) (http.Header, error) {
	headers := make(http.Header, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a `<key>: <value>` pair", ErrInvalidHeader, pair)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: bad name %q", ErrInvalidHeader, name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("%w: bad value for %q", ErrInvalidHeader, name)
		}
		headers.Add(name, value)
	}
	return headers, nil
}
