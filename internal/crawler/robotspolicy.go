package crawler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsPolicy holds the parsed robots.txt rules of one origin.
type robotsPolicy struct {
	data *robotstxt.RobotsData
}

// ParseRobots builds a RobotsPolicy from a robots.txt body.
func ParseRobots(body []byte) (RobotsPolicy, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return &robotsPolicy{data: data}, nil
}

// Allowed implements RobotsPolicy.
func (p *robotsPolicy) Allowed(agent string, rawURL string) bool {
	if p == nil || p.data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return p.data.TestAgent(target, agent)
}

// RobotsURL returns the robots.txt location for the origin of rawURL.
func RobotsURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String(), nil
}

// LoadRobots fetches robots.txt for the origin of seed through transport,
// without a proxy. Transport failures and statuses >= 400 are returned as
// errors with a nil policy; callers treat that as "no restrictions".
func LoadRobots(
	ctx context.Context,
	transport Transport,
	seed string,
	agent string,
	timeout time.Duration,
) (RobotsPolicy, error) {
	robotsURL, err := RobotsURL(seed)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultRobotsTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := transport.Fetch(ctx, FetchRequest{
		URL:       robotsURL,
		UserAgent: agent,
		Timeout:   timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch robots: status %d", resp.StatusCode)
	}
	return ParseRobots(resp.Body)
}
