package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Limits enforced on per-job configuration.
const (
	MaxDepthLimit       = 10
	MaxHardLinkLimit    = 100000
	MaxConcurrencyLimit = 50
	MinBodyChars        = 1000
	MaxBodyChars        = 2000000

	defaultRobotsTimeout = 5 * time.Second
)

// DefaultCrawlConfig returns the job defaults used when a request omits a field.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxDepth:        3,
		RequestTimeout:  10 * time.Second,
		HardLinkLimit:   1000,
		StayInDomain:    true,
		SearchMethod:    SearchBFS,
		AllowedSchemes:  []string{"http", "https"},
		FollowRobotsTxt: true,
		RobotsTimeout:   defaultRobotsTimeout,
		MaxConcurrency:  10,
		StoreBodies:     true,
		MaxBodyChars:    200000,
		HTMLOnly:        true,
	}
}

// Validate checks ranges and compiles patterns. It returns an error wrapping ErrInvalidConfig.
func (c CrawlConfig) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c CrawlConfig) validate() error {
	seed, err := url.Parse(strings.TrimSpace(c.SeedURL))
	if err != nil || seed.Host == "" {
		return fmt.Errorf("seed_url must be an absolute URL")
	}
	if s := strings.ToLower(seed.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("seed_url must use http or https")
	}
	if c.MaxDepth < 0 || c.MaxDepth > MaxDepthLimit {
		return fmt.Errorf("max_depth must be between 0 and %d", MaxDepthLimit)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if c.GlobalTimeout < 0 {
		return fmt.Errorf("global_timeout must be >= 0")
	}
	if c.HardLinkLimit < 1 || c.HardLinkLimit > MaxHardLinkLimit {
		return fmt.Errorf("hard_link_limit must be between 1 and %d", MaxHardLinkLimit)
	}
	if c.SearchMethod != SearchBFS && c.SearchMethod != SearchDFS {
		return fmt.Errorf("search_method must be BFS or DFS")
	}
	if len(cleanList(c.AllowedSchemes)) == 0 {
		return fmt.Errorf("allowed_schemes must include at least one scheme")
	}
	if c.Delay < 0 {
		return fmt.Errorf("obey_rate_limit must be >= 0")
	}
	if c.MaxConcurrency < 1 || c.MaxConcurrency > MaxConcurrencyLimit {
		return fmt.Errorf("max_concurrency must be between 1 and %d", MaxConcurrencyLimit)
	}
	if c.MaxBodyChars < MinBodyChars || c.MaxBodyChars > MaxBodyChars {
		return fmt.Errorf("max_body_chars must be between %d and %d", MinBodyChars, MaxBodyChars)
	}
	if _, err := compilePatterns(c.Filter.AllowPatterns); err != nil {
		return fmt.Errorf("link_filter.allow_patterns: %w", err)
	}
	if _, err := compilePatterns(c.Filter.DenyPatterns); err != nil {
		return fmt.Errorf("link_filter.deny_patterns: %w", err)
	}
	return nil
}

// compilePatterns compiles each pattern case-insensitively.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	patterns = cleanList(patterns)
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
