// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
)

// Backend kinds.
const (
	BackendChromedp = "chromedp"
	BackendHTTP     = "http"
)

// Output kinds.
const (
	OutputNone   = "none"
	OutputLocal  = "local"
	OutputMemory = "memory"
	OutputGCS    = "gcs"
)

// Config captures every knob of a crawl run.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Backend BackendConfig `mapstructure:"backend"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig describes what to crawl and how wide each batch is.
type CrawlerConfig struct {
	Concurrency          int      `mapstructure:"concurrency"`
	Sitemaps             []string `mapstructure:"sitemaps"`
	URLs                 []string `mapstructure:"urls"`
	MaxURLs              int      `mapstructure:"max_urls"`
	ExpandSitemapIndexes bool     `mapstructure:"expand_sitemap_indexes"`
	UserAgent            string   `mapstructure:"user_agent"`
	RespectRobots        bool     `mapstructure:"respect_robots"`
}

// BackendConfig selects and tunes the page backend.
type BackendConfig struct {
	Kind            string   `mapstructure:"kind"`
	Headless        bool     `mapstructure:"headless"`
	ExtraLaunchArgs []string `mapstructure:"extra_launch_args"`
	CacheMode       string   `mapstructure:"cache_mode"`
	NavTimeoutSec   int      `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs   int      `mapstructure:"settle_delay_ms"`
	CacheTTLMinutes int      `mapstructure:"cache_ttl_minutes"`
	DomainQPS       float64  `mapstructure:"domain_qps"`
	DomainBurst     int      `mapstructure:"domain_burst"`
}

// HTTPConfig configures the plain HTTP client used for sitemaps and the http backend.
type HTTPConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int64 `mapstructure:"max_body_bytes"`
}

// OutputConfig says where converted pages go.
type OutputConfig struct {
	Kind      string `mapstructure:"kind"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ServerConfig controls the operator HTTP server. An empty address disables it.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FlagBinding ties a command-line flag to a config key. Flags win over file and env
// values only when the user actually set them.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Load builds a Config from disk, environment, and any bound flags.
func Load(path string, flags ...FlagBinding) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, binding := range flags {
		if binding.Flag == nil {
			continue
		}
		if err := v.BindPFlag(binding.Key, binding.Flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %q: %w", binding.Key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.concurrency", 3)
	v.SetDefault("crawler.max_urls", 0)
	v.SetDefault("crawler.expand_sitemap_indexes", false)
	v.SetDefault("crawler.user_agent", "batch-crawler/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("backend.kind", BackendChromedp)
	v.SetDefault("backend.headless", true)
	v.SetDefault("backend.extra_launch_args", []string{"--disable-gpu", "--disable-dev-shm-usage", "--no-sandbox"})
	v.SetDefault("backend.cache_mode", string(crawler.CacheModeBypass))
	v.SetDefault("backend.nav_timeout_seconds", 45)
	v.SetDefault("backend.settle_delay_ms", 500)
	v.SetDefault("backend.cache_ttl_minutes", 10)
	v.SetDefault("backend.domain_qps", 0)
	v.SetDefault("backend.domain_burst", 1)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("output.kind", OutputNone)
	v.SetDefault("output.dir", "data/pages")
	v.SetDefault("output.prefix", "pages")
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return invalid("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxURLs < 0 {
		return invalid("crawler.max_urls must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return invalid("http.timeout_seconds must be > 0")
	}
	switch c.Backend.Kind {
	case BackendChromedp:
		if c.Backend.NavTimeoutSec <= 0 {
			return invalid("backend.nav_timeout_seconds must be > 0")
		}
	case BackendHTTP:
	default:
		return invalid("backend.kind must be %q or %q, got %q", BackendChromedp, BackendHTTP, c.Backend.Kind)
	}
	if _, err := crawler.ParseCacheMode(c.Backend.CacheMode); err != nil {
		return invalid("backend.cache_mode: %v", err)
	}
	if c.Backend.DomainQPS < 0 {
		return invalid("backend.domain_qps must be >= 0")
	}
	for _, arg := range c.Backend.ExtraLaunchArgs {
		if !strings.HasPrefix(arg, "--") {
			return invalid("backend.extra_launch_args entry %q must start with --", arg)
		}
	}
	switch c.Output.Kind {
	case "", OutputNone, OutputMemory:
	case OutputLocal:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return invalid("output.dir must be set when output.kind is local")
		}
	case OutputGCS:
		if strings.TrimSpace(c.Output.GCSBucket) == "" {
			return invalid("output.gcs_bucket must be set when output.kind is gcs")
		}
	default:
		return invalid("output.kind %q is not supported", c.Output.Kind)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", crawler.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// FetchConfig converts the backend section into the value handed to page backends.
func (c Config) FetchConfig() crawler.FetchConfig {
	mode, err := crawler.ParseCacheMode(c.Backend.CacheMode)
	if err != nil {
		mode = crawler.CacheModeBypass
	}
	return crawler.FetchConfig{
		CacheMode:       mode,
		Headless:        c.Backend.Headless,
		ExtraLaunchArgs: append([]string(nil), c.Backend.ExtraLaunchArgs...),
	}
}

// HTTPTimeout is the per-request budget of the plain HTTP client.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavigationTimeout bounds a single headless page load.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Backend.NavTimeoutSec) * time.Second
}

// SettleDelay is how long the headless backend waits after the body is ready.
// Zero in config disables the wait.
func (c Config) SettleDelay() time.Duration {
	if c.Backend.SettleDelayMs <= 0 {
		return -1
	}
	return time.Duration(c.Backend.SettleDelayMs) * time.Millisecond
}

// CacheTTL is the lifetime of cached pages when cache_mode is use.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Backend.CacheTTLMinutes) * time.Minute
}
