package crawler

import (
	"net/http"
	"time"
)

// SearchMethod selects the frontier discipline.
type SearchMethod string

const (
	// SearchBFS visits URLs in discovery order.
	SearchBFS SearchMethod = "BFS"
	// SearchDFS visits the most recently discovered URL first.
	SearchDFS SearchMethod = "DFS"
)

// JobStatus captures lifecycle states.
type JobStatus string

const (
	// JobStatusQueued indicates the job is registered but not started.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the traversal loop is active.
	JobStatusRunning JobStatus = "running"
	// JobStatusFinished indicates the frontier was exhausted, the link limit hit, or the global timeout reached.
	JobStatusFinished JobStatus = "finished"
	// JobStatusStopped indicates the loop exited on a stop request.
	JobStatusStopped JobStatus = "stopped"
	// JobStatusError indicates an unexpected fault ended the job.
	JobStatusError JobStatus = "error"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusFinished, JobStatusStopped, JobStatusError:
		return true
	default:
		return false
	}
}

// LinkFilter holds allow and deny regular expressions applied to candidate URLs.
type LinkFilter struct {
	AllowPatterns []string `json:"allow_patterns" mapstructure:"allow_patterns"`
	DenyPatterns  []string `json:"deny_patterns" mapstructure:"deny_patterns"`
}

// CrawlConfig is the validated, per-job crawl configuration.
type CrawlConfig struct {
	SeedURL         string
	MaxDepth        int
	RequestTimeout  time.Duration
	GlobalTimeout   time.Duration
	HardLinkLimit   int
	StayInDomain    bool
	SearchMethod    SearchMethod
	AllowedSchemes  []string
	Filter          LinkFilter
	UserAgents      []string
	Proxies         []string
	FollowRobotsTxt bool
	RobotsTimeout   time.Duration
	Delay           time.Duration
	MaxConcurrency  int
	StoreBodies     bool
	MaxBodyChars    int
	HTMLOnly        bool
}

// FrontierItem is a pending URL together with the depth it was discovered at.
type FrontierItem struct {
	URL   string
	Depth int
}

// NodeRecord describes one visited URL.
type NodeRecord struct {
	URL         string            `json:"url"`
	Status      *int              `json:"status"`
	ContentType string            `json:"content_type,omitempty"`
	Depth       int               `json:"depth"`
	Title       string            `json:"title,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Body        string            `json:"body,omitempty"`
}

// WithoutBody returns a copy of the node with the body snippet removed.
func (n NodeRecord) WithoutBody() NodeRecord {
	n.Body = ""
	return n
}

// EdgeRecord is a directed hyperlink observed on a visited page.
type EdgeRecord struct {
	From       string `json:"from"`
	To         string `json:"to"`
	AnchorText string `json:"anchor_text"`
}

// FetchRequest describes a single transport call.
type FetchRequest struct {
	URL       string
	UserAgent string
	Proxy     string
	Timeout   time.Duration
	Headers   http.Header
}

// FetchResponse is what a Transport returns for a completed exchange.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// FetchOutcome discriminates FetchResult variants.
type FetchOutcome int

const (
	// FetchFailed means no HTTP status was obtained.
	FetchFailed FetchOutcome = iota
	// FetchedWithoutBody means a status was obtained but the body was dropped or empty.
	FetchedWithoutBody
	// FetchedWithBody means the status, content type and decoded body are present.
	FetchedWithBody
)

// FetchResult is the fetch pipeline's answer for one URL. Failures are data, not errors.
type FetchResult struct {
	Outcome     FetchOutcome
	StatusCode  int
	ContentType string
	Body        string
	Duration    time.Duration
}

// HasStatus reports whether an HTTP status was obtained.
func (r FetchResult) HasStatus() bool {
	return r.Outcome != FetchFailed
}

// HasBody reports whether a non-empty body is available for extraction.
func (r FetchResult) HasBody() bool {
	return r.Outcome == FetchedWithBody && r.Body != ""
}

// JobSummary is the externally visible status snapshot of a job.
type JobSummary struct {
	RunID      string     `json:"run_id"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	TotalNodes int        `json:"total_nodes"`
	TotalEdges int        `json:"total_edges"`
	Limit      int        `json:"limit"`
	SeedURL    string     `json:"seed_url"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobResult is the graph collected by a job, without page bodies.
type JobResult struct {
	RunID  string       `json:"run_id"`
	Status JobStatus    `json:"status"`
	Nodes  []NodeRecord `json:"nodes"`
	Edges  []EdgeRecord `json:"edges"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Submitted int64
}
