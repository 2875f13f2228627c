package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 30
auth:
  enabled: true
  api_key: secret
workers:
  count: 2
  queue_depth: 8
crawler:
  max_depth: 5
  request_timeout_seconds: 2.5
  global_timeout_seconds: 60
  hard_link_limit: 50
  stay_in_domain: false
  search_method: dfs
  user_agents: ["agent-a", "agent-b"]
  link_filter:
    deny_patterns: ["\\.pdf$"]
storage:
  backend: local
  local_dir: /tmp/artifacts
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Workers.Count != 2 || cfg.Workers.QueueDepth != 8 {
		t.Fatalf("expected worker overrides, got %+v", cfg.Workers)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.Storage.LocalDir != "/tmp/artifacts" {
		t.Fatalf("expected local storage, got %+v", cfg.Storage)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Fatalf("expected request timeout 30s, got %v", got)
	}

	defaults := cfg.CrawlDefaults()
	if defaults.MaxDepth != 5 || defaults.HardLinkLimit != 50 || defaults.StayInDomain {
		t.Fatalf("expected crawler overrides to apply: %+v", defaults)
	}
	if defaults.SearchMethod != crawler.SearchDFS {
		t.Fatalf("expected DFS, got %q", defaults.SearchMethod)
	}
	if defaults.RequestTimeout != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s request timeout, got %v", defaults.RequestTimeout)
	}
	if defaults.GlobalTimeout != time.Minute {
		t.Fatalf("expected 60s global timeout, got %v", defaults.GlobalTimeout)
	}
	if len(defaults.UserAgents) != 2 || defaults.UserAgents[0] != "agent-a" {
		t.Fatalf("expected user agents to load: %v", defaults.UserAgents)
	}
	if len(defaults.Filter.DenyPatterns) != 1 || defaults.Filter.DenyPatterns[0] != `\.pdf$` {
		t.Fatalf("expected deny pattern to load: %+v", defaults.Filter)
	}
	// Unset keys keep their defaults.
	if !defaults.FollowRobotsTxt || defaults.MaxConcurrency != 10 {
		t.Fatalf("expected defaults for unset keys: %+v", defaults)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != StorageMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.DB.JobsTable != "crawl_jobs" || cfg.DB.PagesTable != "crawl_pages" {
		t.Fatalf("unexpected table defaults: %+v", cfg.DB)
	}
	d := cfg.CrawlDefaults()
	want := crawler.DefaultCrawlConfig()
	if d.MaxDepth != want.MaxDepth || d.RequestTimeout != want.RequestTimeout || d.SearchMethod != want.SearchMethod {
		t.Fatalf("crawl defaults drifted: got %+v want %+v", d, want)
	}
	if d.GlobalTimeout != 0 {
		t.Fatalf("expected no global timeout by default, got %v", d.GlobalTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_SERVER_PORT", "7070")
	t.Setenv("CRAWLER_WORKERS_COUNT", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Workers.Count != 9 {
		t.Fatalf("expected env worker count 9, got %d", cfg.Workers.Count)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func validConfig() Config {
	d := crawler.DefaultCrawlConfig()
	return Config{
		Server:  ServerConfig{Port: 8080},
		Workers: WorkersConfig{Count: 1},
		Storage: StorageConfig{Backend: StorageMemory},
		Crawler: CrawlerConfig{
			MaxDepth:              d.MaxDepth,
			RequestTimeoutSeconds: d.RequestTimeout.Seconds(),
			HardLinkLimit:         d.HardLinkLimit,
			SearchMethod:          string(d.SearchMethod),
			AllowedSchemes:        d.AllowedSchemes,
			MaxConcurrency:        d.MaxConcurrency,
			MaxBodyChars:          d.MaxBodyChars,
		},
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid base config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "workers", mutate: func(c *Config) { c.Workers.Count = 0 }, want: "workers.count"},
		{name: "queue depth", mutate: func(c *Config) { c.Workers.QueueDepth = -1 }, want: "workers.queue_depth"},
		{name: "auth", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "local dir", mutate: func(c *Config) { c.Storage.Backend = StorageLocal }, want: "storage.local_dir"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.gcs_bucket"},
		{name: "pubsub", mutate: func(c *Config) { c.PubSub.TopicName = "done" }, want: "pubsub.project_id"},
		{name: "depth", mutate: func(c *Config) { c.Crawler.MaxDepth = 99 }, want: "max_depth"},
		{name: "search", mutate: func(c *Config) { c.Crawler.SearchMethod = "random" }, want: "search_method"},
		{name: "pattern", mutate: func(c *Config) { c.Crawler.Filter.AllowPatterns = []string{"("} }, want: "allow_patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestSeconds(t *testing.T) {
	t.Parallel()

	if got := Seconds(1.5); got != 1500*time.Millisecond {
		t.Fatalf("Seconds(1.5) = %v", got)
	}
	if got := Seconds(0); got != 0 {
		t.Fatalf("Seconds(0) = %v", got)
	}
}
