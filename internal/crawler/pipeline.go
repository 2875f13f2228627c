package crawler

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/linkgraph-crawler/internal/metrics"
)

const acceptHeader = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"

// PipelineConfig tunes a FetchPipeline.
type PipelineConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	HTMLOnly       bool
}

// FetchPipeline performs bounded, identity-rotating fetches and never returns errors.
type FetchPipeline struct {
	transport Transport
	permits   *semaphore.Weighted
	agents    *UserAgentPool
	proxies   *ProxyPool
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewFetchPipeline wires a pipeline around transport.
func NewFetchPipeline(
	transport Transport,
	agents *UserAgentPool,
	proxies *ProxyPool,
	cfg PipelineConfig,
	logger *zap.Logger,
) *FetchPipeline {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if agents == nil {
		agents = NewUserAgentPool(nil, nil)
	}
	if proxies == nil {
		proxies = NewProxyPool(nil, nil)
	}
	return &FetchPipeline{
		transport: transport,
		permits:   semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		agents:    agents,
		proxies:   proxies,
		cfg:       cfg,
		logger:    logger,
	}
}

// Fetch retrieves url once. Transport errors, timeouts and cancellation all
// become a FetchFailed result.
func (p *FetchPipeline) Fetch(ctx context.Context, url string) FetchResult {
	if err := p.permits.Acquire(ctx, 1); err != nil {
		return FetchResult{Outcome: FetchFailed}
	}
	defer p.permits.Release(1)

	req := FetchRequest{
		URL:       url,
		UserAgent: p.agents.Pick(),
		Proxy:     p.proxies.Pick(),
		Timeout:   p.cfg.RequestTimeout,
		Headers:   http.Header{"Accept": {acceptHeader}},
	}
	reqCtx := ctx
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.transport.Fetch(reqCtx, req)
	elapsed := time.Since(start)
	metrics.ObserveFetchDuration(elapsed)
	if err != nil {
		p.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveFetchFailure()
		return FetchResult{Outcome: FetchFailed, Duration: elapsed}
	}
	metrics.ObservePage(url, resp.StatusCode, len(resp.Body))

	result := FetchResult{
		Outcome:     FetchedWithoutBody,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Duration:    elapsed,
	}
	if p.cfg.HTMLOnly && !isHTML(resp.ContentType) {
		return result
	}
	if len(resp.Body) > 0 {
		result.Outcome = FetchedWithBody
		result.Body = strings.ToValidUTF8(string(resp.Body), "\uFFFD")
	}
	return result
}

// isHTML reports whether a Content-Type header names an HTML document.
func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}
	return strings.Contains(mediaType, "text/html") || strings.Contains(mediaType, "application/xhtml+xml")
}
