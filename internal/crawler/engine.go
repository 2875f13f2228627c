package crawler

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/metrics"
)

// Outcome explains why the traversal loop exited normally.
type Outcome string

const (
	// OutcomeExhausted means the frontier emptied or the hard link limit was reached.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeStopped means a stop was requested or the context was canceled.
	OutcomeStopped Outcome = "stopped"
	// OutcomeTimedOut means the global timeout elapsed.
	OutcomeTimedOut Outcome = "timed_out"
)

// Engine runs the single-threaded traversal loop for a job.
type Engine struct {
	transport Transport
	extractor *PageExtractor
	clock     Clock
	logger    *zap.Logger
	newRand   func() *rand.Rand
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithRandSource sets the factory for the random sources used by the user-agent and proxy pools.
func WithRandSource(fn func() *rand.Rand) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newRand = fn
		}
	}
}

// NewEngine builds an Engine over transport.
func NewEngine(transport Transport, clock Clock, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		transport: transport,
		extractor: NewPageExtractor(),
		clock:     clock,
		logger:    logger,
		newRand:   NewRand,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type traversal struct {
	job      *Job
	cfg      CrawlConfig
	filter   *AdmissionFilter
	pipeline *FetchPipeline
	frontier Frontier
	visited  *VisitedSet
	logger   *zap.Logger
}

// Run crawls from the job's seed until the frontier is exhausted, the link
// limit is reached, a stop is requested, or the global timeout elapses.
// Nodes and edges are recorded on the job as pages are visited.
func (e *Engine) Run(ctx context.Context, job *Job) (Outcome, error) {
	cfg := job.Config
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	logger := e.logger.With(zap.String("run_id", job.ID))
	seed := NormalizeURL(cfg.SeedURL, "")
	agents := NewUserAgentPool(cfg.UserAgents, e.newRand())
	proxies := NewProxyPool(cfg.Proxies, e.newRand())
	start := e.clock.Now()

	var robots RobotsPolicy
	if cfg.FollowRobotsTxt {
		policy, err := LoadRobots(ctx, e.transport, seed, agents.Primary(), cfg.RobotsTimeout)
		if err != nil {
			logger.Warn("robots unavailable; crawling without restrictions", zap.String("seed", seed), zap.Error(err))
		} else {
			robots = policy
		}
	}
	filter, err := NewAdmissionFilter(cfg, robots, agents.Primary())
	if err != nil {
		return "", err
	}

	t := &traversal{
		job:    job,
		cfg:    cfg,
		filter: filter,
		pipeline: NewFetchPipeline(e.transport, agents, proxies, PipelineConfig{
			MaxConcurrency: cfg.MaxConcurrency,
			RequestTimeout: cfg.RequestTimeout,
			HTMLOnly:       cfg.HTMLOnly,
		}, logger),
		frontier: NewFrontier(cfg.SearchMethod),
		visited:  NewVisitedSet(),
		logger:   logger,
	}
	t.frontier.Push(FrontierItem{URL: seed, Depth: 0})

	for {
		if job.StopRequested() || ctx.Err() != nil {
			return OutcomeStopped, nil
		}
		if cfg.GlobalTimeout > 0 && e.clock.Now().Sub(start) >= cfg.GlobalTimeout {
			return OutcomeTimedOut, nil
		}
		if t.frontier.Len() == 0 || t.visited.Len() >= cfg.HardLinkLimit {
			return OutcomeExhausted, nil
		}

		item, _ := t.frontier.Pop()
		target := NormalizeURL(item.URL, seed)
		if reason, ok := filter.Admit(target, item.Depth, t.visited); !ok {
			metrics.ObserveRejection(string(reason))
			continue
		}
		t.visited.MarkIfNew(target)
		e.visit(ctx, t, target, item.Depth)

		if cfg.Delay > 0 {
			// a canceled sleep is picked up by the stop check above
			_ = e.clock.Sleep(ctx, cfg.Delay)
		}
	}
}

func (e *Engine) visit(ctx context.Context, t *traversal, target string, depth int) {
	res := t.pipeline.Fetch(ctx, target)
	node := NodeRecord{URL: target, Depth: depth}
	if res.HasStatus() {
		status := res.StatusCode
		node.Status = &status
		node.ContentType = res.ContentType
	}

	var edges []EdgeRecord
	if res.HasBody() {
		page, err := e.extractor.Extract(res.Body, target)
		if err != nil {
			t.logger.Warn("extract page failed", zap.String("url", target), zap.Error(err))
		} else {
			node.Title = page.Title
			node.Meta = page.Meta
			node.Keywords = page.Keywords
			edges = t.follow(target, depth, page.Links)
		}
		if t.cfg.StoreBodies {
			node.Body = clipRunes(res.Body, t.cfg.MaxBodyChars)
		}
	}

	t.job.RecordPage(node, edges)
	t.logger.Debug("page visited",
		zap.String("url", target),
		zap.Int("depth", depth),
		zap.Int("status", res.StatusCode),
		zap.Int("links", len(edges)),
		zap.Int("frontier", t.frontier.Len()),
	)
}

// follow records an edge for every link with an allowed scheme and enqueues
// the unvisited, in-domain ones while visited+frontier stays under the limit.
func (t *traversal) follow(from string, depth int, links []Link) []EdgeRecord {
	edges := make([]EdgeRecord, 0, len(links))
	for _, link := range links {
		if !t.filter.SchemeAllowed(link.URL) {
			continue
		}
		edges = append(edges, EdgeRecord{From: from, To: link.URL, AnchorText: link.AnchorText})
		if t.visited.Contains(link.URL) {
			continue
		}
		if t.visited.Len()+t.frontier.Len() >= t.cfg.HardLinkLimit {
			continue
		}
		if !t.filter.InDomain(link.URL) {
			continue
		}
		t.frontier.Push(FrontierItem{URL: link.URL, Depth: depth + 1})
	}
	return edges
}
