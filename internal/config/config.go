// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Workers WorkersConfig `mapstructure:"workers"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// WorkersConfig sizes the background job pool.
type WorkersConfig struct {
	Count      int `mapstructure:"count"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// CrawlerConfig holds the defaults applied to job requests that omit a field,
// plus transport settings shared by all jobs.
type CrawlerConfig struct {
	MaxDepth              int                `mapstructure:"max_depth"`
	RequestTimeoutSeconds float64            `mapstructure:"request_timeout_seconds"`
	GlobalTimeoutSeconds  float64            `mapstructure:"global_timeout_seconds"`
	HardLinkLimit         int                `mapstructure:"hard_link_limit"`
	StayInDomain          bool               `mapstructure:"stay_in_domain"`
	SearchMethod          string             `mapstructure:"search_method"`
	AllowedSchemes        []string           `mapstructure:"allowed_schemes"`
	Filter                crawler.LinkFilter `mapstructure:"link_filter"`
	UserAgents            []string           `mapstructure:"user_agents"`
	Proxies               []string           `mapstructure:"proxies"`
	FollowRobotsTxt       bool               `mapstructure:"follow_robots_txt"`
	RobotsTimeoutSeconds  float64            `mapstructure:"robots_timeout_seconds"`
	DelaySeconds          float64            `mapstructure:"delay_seconds"`
	MaxConcurrency        int                `mapstructure:"max_concurrency"`
	StoreBodies           bool               `mapstructure:"store_bodies"`
	MaxBodyChars          int                `mapstructure:"max_body_chars"`
	HTMLOnly              bool               `mapstructure:"html_only"`
	// MaxResponseBytes caps bytes read per HTTP response; zero keeps the transport default.
	MaxResponseBytes int `mapstructure:"max_response_bytes"`
}

// StorageConfig selects where run artifacts are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres summary store.
type DBConfig struct {
	DSN        string `mapstructure:"dsn"`
	JobsTable  string `mapstructure:"jobs_table"`
	PagesTable string `mapstructure:"pages_table"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the rotating file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
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
	d := crawler.DefaultCrawlConfig()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_depth", 64)
	v.SetDefault("crawler.max_depth", d.MaxDepth)
	v.SetDefault("crawler.request_timeout_seconds", d.RequestTimeout.Seconds())
	v.SetDefault("crawler.global_timeout_seconds", 0)
	v.SetDefault("crawler.hard_link_limit", d.HardLinkLimit)
	v.SetDefault("crawler.stay_in_domain", d.StayInDomain)
	v.SetDefault("crawler.search_method", string(d.SearchMethod))
	v.SetDefault("crawler.allowed_schemes", d.AllowedSchemes)
	v.SetDefault("crawler.follow_robots_txt", d.FollowRobotsTxt)
	v.SetDefault("crawler.robots_timeout_seconds", d.RobotsTimeout.Seconds())
	v.SetDefault("crawler.delay_seconds", 0)
	v.SetDefault("crawler.max_concurrency", d.MaxConcurrency)
	v.SetDefault("crawler.store_bodies", d.StoreBodies)
	v.SetDefault("crawler.max_body_chars", d.MaxBodyChars)
	v.SetDefault("crawler.html_only", d.HTMLOnly)
	v.SetDefault("crawler.max_response_bytes", 10<<20)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("db.jobs_table", "crawl_jobs")
	v.SetDefault("db.pages_table", "crawl_pages")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Workers.QueueDepth < 0 {
		return fmt.Errorf("workers.queue_depth must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs (got %q)", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	// The defaults are checked as a full job config against a placeholder seed.
	defaults := c.CrawlDefaults()
	defaults.SeedURL = "https://example.com/"
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("crawler defaults: %w", err)
	}
	return nil
}

// CrawlDefaults converts the crawler section into a job config without a seed.
func (c Config) CrawlDefaults() crawler.CrawlConfig {
	cc := c.Crawler
	return crawler.CrawlConfig{
		MaxDepth:        cc.MaxDepth,
		RequestTimeout:  Seconds(cc.RequestTimeoutSeconds),
		GlobalTimeout:   Seconds(cc.GlobalTimeoutSeconds),
		HardLinkLimit:   cc.HardLinkLimit,
		StayInDomain:    cc.StayInDomain,
		SearchMethod:    crawler.SearchMethod(strings.ToUpper(cc.SearchMethod)),
		AllowedSchemes:  append([]string(nil), cc.AllowedSchemes...),
		Filter:          cc.Filter,
		UserAgents:      append([]string(nil), cc.UserAgents...),
		Proxies:         append([]string(nil), cc.Proxies...),
		FollowRobotsTxt: cc.FollowRobotsTxt,
		RobotsTimeout:   Seconds(cc.RobotsTimeoutSeconds),
		Delay:           Seconds(cc.DelaySeconds),
		MaxConcurrency:  cc.MaxConcurrency,
		StoreBodies:     cc.StoreBodies,
		MaxBodyChars:    cc.MaxBodyChars,
		HTMLOnly:        cc.HTMLOnly,
	}
}

// RequestTimeout is the per-request budget for API handlers.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Seconds converts fractional seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
