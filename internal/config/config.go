// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs discovery and pipeline behavior.
type CrawlerConfig struct {
	RootURL        string `mapstructure:"root_url"`
	WebsiteName    string `mapstructure:"website_name"`
	Concurrency    int    `mapstructure:"concurrency"`
	MaxPages       int    `mapstructure:"max_pages_per_category"`
	IdentitySource string `mapstructure:"identity_source"`
	UserAgent      string `mapstructure:"user_agent"`
}

// HTTPConfig configures HTTP client timeout, retry, and pacing behavior.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	RatePerHost       float64 `mapstructure:"rate_per_host"`
	RateBurst         int     `mapstructure:"rate_burst"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	Table              string `mapstructure:"table"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxRetries         int    `mapstructure:"max_retries"`
	BackoffInitialMs   int    `mapstructure:"backoff_initial_ms"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// ServerConfig controls the observability HTTP endpoint.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("crawler.root_url", "https://webshop.viv.nl/")
	v.SetDefault("crawler.website_name", "webshop.viv.nl")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.max_pages_per_category", 100)
	v.SetDefault("crawler.identity_source", "url")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.backoff_multiplier", 2.0)
	v.SetDefault("http.rate_per_host", 0.67)
	v.SetDefault("http.rate_burst", 1)
	v.SetDefault("db.table", "products")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_retries", 3)
	v.SetDefault("db.backoff_initial_ms", 250)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.RootURL == "" {
		return fmt.Errorf("crawler.root_url must be set")
	}
	if c.Crawler.WebsiteName == "" {
		return fmt.Errorf("crawler.website_name must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages_per_category must be > 0")
	}
	switch c.Crawler.IdentitySource {
	case "url", "sku":
	default:
		return fmt.Errorf("crawler.identity_source must be url or sku")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set when server is enabled")
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase converts the initial backoff config into a duration.
func (c HTTPConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff ceiling config into a duration.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// BackoffBase converts the initial write backoff config into a duration.
func (c DBConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// ConnLifetime converts the pool lifetime config into a duration.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinute) * time.Minute
}
