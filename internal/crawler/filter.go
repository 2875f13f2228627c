package crawler

import (
	"regexp"
	"strings"
)

// RejectReason names the admission stage that refused a URL.
type RejectReason string

// Admission stages, in evaluation order.
const (
	RejectVisited RejectReason = "visited"
	RejectDepth   RejectReason = "depth"
	RejectDomain  RejectReason = "domain"
	RejectRobots  RejectReason = "robots"
	RejectScheme  RejectReason = "scheme"
	RejectPattern RejectReason = "pattern"
)

// AdmissionFilter decides whether a popped URL may be fetched.
type AdmissionFilter struct {
	maxDepth     int
	stayInDomain bool
	seedHost     string
	schemes      map[string]struct{}
	allow        []*regexp.Regexp
	deny         []*regexp.Regexp
	robots       RobotsPolicy
	robotsAgent  string
}

// NewAdmissionFilter builds a filter for cfg. robots may be nil, meaning no restrictions.
func NewAdmissionFilter(cfg CrawlConfig, robots RobotsPolicy, robotsAgent string) (*AdmissionFilter, error) {
	allow, err := compilePatterns(cfg.Filter.AllowPatterns)
	if err != nil {
		return nil, err
	}
	deny, err := compilePatterns(cfg.Filter.DenyPatterns)
	if err != nil {
		return nil, err
	}
	schemes := make(map[string]struct{}, len(cfg.AllowedSchemes))
	for _, s := range cleanList(cfg.AllowedSchemes) {
		schemes[strings.ToLower(s)] = struct{}{}
	}
	return &AdmissionFilter{
		maxDepth:     cfg.MaxDepth,
		stayInDomain: cfg.StayInDomain,
		seedHost:     hostOf(NormalizeURL(cfg.SeedURL, "")),
		schemes:      schemes,
		allow:        allow,
		deny:         deny,
		robots:       robots,
		robotsAgent:  robotsAgent,
	}, nil
}

// Admit runs every stage in order and returns the first rejection.
func (f *AdmissionFilter) Admit(rawURL string, depth int, visited *VisitedSet) (RejectReason, bool) {
	switch {
	case visited != nil && visited.Contains(rawURL):
		return RejectVisited, false
	case !f.DepthAllowed(depth):
		return RejectDepth, false
	case !f.InDomain(rawURL):
		return RejectDomain, false
	case !f.RobotsAllowed(rawURL):
		return RejectRobots, false
	case !f.SchemeAllowed(rawURL):
		return RejectScheme, false
	case !f.PatternsAllow(rawURL):
		return RejectPattern, false
	default:
		return "", true
	}
}

// DepthAllowed reports whether depth is within the configured maximum.
func (f *AdmissionFilter) DepthAllowed(depth int) bool {
	return depth <= f.maxDepth
}

// InDomain reports whether rawURL shares the seed host when domain pinning is on.
func (f *AdmissionFilter) InDomain(rawURL string) bool {
	if !f.stayInDomain {
		return true
	}
	return hostOf(rawURL) == f.seedHost
}

// RobotsAllowed consults the loaded robots policy, if any.
func (f *AdmissionFilter) RobotsAllowed(rawURL string) bool {
	if f.robots == nil {
		return true
	}
	return f.robots.Allowed(f.robotsAgent, rawURL)
}

// SchemeAllowed reports whether the URL scheme is in the allow-list.
func (f *AdmissionFilter) SchemeAllowed(rawURL string) bool {
	_, ok := f.schemes[schemeOf(rawURL)]
	return ok
}

// PatternsAllow applies allow patterns (any must match when present) then deny patterns.
func (f *AdmissionFilter) PatternsAllow(rawURL string) bool {
	if len(f.allow) > 0 && !matchesAny(f.allow, rawURL) {
		return false
	}
	return !matchesAny(f.deny, rawURL)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
