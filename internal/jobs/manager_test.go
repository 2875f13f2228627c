package jobs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
	pubmemory "github.com/JakeFAU/linkgraph-crawler/internal/publisher/memory"
	queuememory "github.com/JakeFAU/linkgraph-crawler/internal/queue/memory"
	"github.com/JakeFAU/linkgraph-crawler/internal/storage/memory"
)

type page struct {
	status int
	body   string
}

type stubTransport struct {
	mu    sync.Mutex
	pages map[string]page
	panic bool
}

func (s *stubTransport) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if s.panic && !strings.HasSuffix(req.URL, "/robots.txt") {
		panic("parser exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: 404, ContentType: "text/plain"}, nil
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: p.status, ContentType: "text/html", Body: []byte(p.body)}, nil
}

func site() *stubTransport {
	return &stubTransport{pages: map[string]page{
		"https://example.com/":  {200, `<html><title>Home</title><a href="/a">A</a><a href="/b">B</a></html>`},
		"https://example.com/a": {200, `<html><title>A</title><a href="/">home</a></html>`},
		"https://example.com/b": {200, `<html><title>B</title></html>`},
	}}
}

// stepClock advances by step on every Now call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "run-" + string(rune('0'+s.n)), nil
}

type recordingSummaries struct {
	mu        sync.Mutex
	summaries []crawler.JobSummary
	nodes     [][]crawler.NodeRecord
}

func (r *recordingSummaries) SaveJob(_ context.Context, s crawler.JobSummary, nodes []crawler.NodeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	r.nodes = append(r.nodes, nodes)
	return nil
}

func (r *recordingSummaries) Close() {}

// stalledSummaries blocks until its context expires.
type stalledSummaries struct{}

func (stalledSummaries) SaveJob(ctx context.Context, _ crawler.JobSummary, _ []crawler.NodeRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledSummaries) Close() {}

type failingBlobs struct{ *memory.BlobStore }

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, crawler.QueueItem) error { return errors.New("queue full") }

type fixture struct {
	mgr       *Manager
	queue     *queuememory.Queue
	pub       *pubmemory.Publisher
	summaries *recordingSummaries
	blobs     *memory.BlobStore
}

func newFixture(t *testing.T, transport crawler.Transport, mutate func(*Deps)) fixture {
	t.Helper()
	f := fixture{
		queue:     queuememory.NewQueue(4),
		pub:       pubmemory.New(),
		summaries: &recordingSummaries{},
		blobs:     memory.NewBlobStore(),
	}
	deps := Deps{
		Jobs:      memory.NewJobStore(),
		Blobs:     f.blobs,
		Summaries: f.summaries,
		Publisher: f.pub,
		Transport: transport,
		IDs:       &seqIDs{},
		Clock:     &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		Queue:     f.queue,
		Topic:     "crawl-events",
	}
	if mutate != nil {
		mutate(&deps)
	}
	mgr, err := New(deps, zap.NewNop())
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

func seedConfig() crawler.CrawlConfig {
	cfg := crawler.DefaultCrawlConfig()
	cfg.SeedURL = "https://example.com/"
	return cfg
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, nil)
	require.Error(t, err)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), nil)
	cfg := seedConfig()
	cfg.MaxDepth = 11
	_, err := f.mgr.Create(context.Background(), cfg)
	require.ErrorIs(t, err, crawler.ErrInvalidConfig)
}

func TestSubmitQueuesJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), nil)
	id, err := f.mgr.Submit(context.Background(), seedConfig())
	require.NoError(t, err)
	require.Equal(t, "run-1", id)

	status, err := f.mgr.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusQueued, status.Status)
	assert.Equal(t, "https://example.com/", status.SeedURL)

	item, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, item.JobID)
	assert.NotZero(t, item.Submitted)
}

func TestRunJobFinishesAndPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), nil)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, seedConfig())
	require.NoError(t, err)

	f.mgr.RunJob(ctx, id)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusFinished, status.Status)
	assert.Empty(t, status.Error)
	assert.Equal(t, 3, status.TotalNodes)
	assert.Equal(t, 3, status.TotalEdges)
	require.NotNil(t, status.StartedAt)
	require.NotNil(t, status.FinishedAt)

	result, err := f.mgr.Result(ctx, id)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 3)
	for _, n := range result.Nodes {
		assert.Empty(t, n.Body, "result must omit bodies")
	}

	_, err = f.blobs.GetObject(ctx, id+"/nodes.json")
	require.NoError(t, err)

	require.Len(t, f.summaries.summaries, 1)
	assert.Equal(t, crawler.JobStatusFinished, f.summaries.summaries[0].Status)
	for _, n := range f.summaries.nodes[0] {
		assert.Empty(t, n.Body)
	}

	msgs := f.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "crawl-events", msgs[0].Topic)
	event, ok := msgs[0].Payload.(CompletionEvent)
	require.True(t, ok)
	assert.Equal(t, "crawl.completed", event.Event)
	assert.Equal(t, id, event.RunID)

	// A finished job cannot be run again.
	f.mgr.RunJob(ctx, id)
	assert.Len(t, f.pub.Messages(), 1)
}

func TestSlowSummaryWriteDoesNotDropCompletionEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), func(d *Deps) {
		d.Summaries = stalledSummaries{}
		d.PersistTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, seedConfig())
	require.NoError(t, err)

	f.mgr.RunJob(ctx, id)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusFinished, status.Status)
	msgs := f.pub.Messages()
	require.Len(t, msgs, 1)
	event, ok := msgs[0].Payload.(CompletionEvent)
	require.True(t, ok)
	assert.Equal(t, id, event.RunID)
}

func TestStopBeforeRunYieldsStopped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), nil)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, seedConfig())
	require.NoError(t, err)
	require.NoError(t, f.mgr.Stop(ctx, id))

	f.mgr.RunJob(ctx, id)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusStopped, status.Status)
	_, err = f.blobs.GetObject(ctx, id+"/nodes.json")
	require.NoError(t, err, "stopped jobs still persist artifacts")
}

func TestGlobalTimeoutFinishesWithMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), func(d *Deps) {
		d.Clock = &stepClock{now: time.Unix(0, 0), step: time.Second}
	})
	ctx := context.Background()
	cfg := seedConfig()
	cfg.GlobalTimeout = time.Second
	id, err := f.mgr.Create(ctx, cfg)
	require.NoError(t, err)

	f.mgr.RunJob(ctx, id)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusFinished, status.Status)
	assert.Equal(t, TimeoutMessage, status.Error)
}

func TestEnginePanicBecomesError(t *testing.T) {
	t.Parallel()

	transport := site()
	transport.panic = true
	f := newFixture(t, transport, nil)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, seedConfig())
	require.NoError(t, err)

	require.NotPanics(t, func() { f.mgr.RunJob(ctx, id) })

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusError, status.Status)
	assert.Contains(t, status.Error, "parser exploded")
}

func TestPersistFailureMarksError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), func(d *Deps) {
		d.Blobs = failingBlobs{memory.NewBlobStore()}
	})
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, seedConfig())
	require.NoError(t, err)

	f.mgr.RunJob(ctx, id)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusError, status.Status)
	assert.Contains(t, status.Error, "disk full")
	assert.Equal(t, 3, status.TotalNodes, "partial results kept")
}

func TestStartFailureMarksError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), func(d *Deps) {
		d.Queue = failingQueue{}
	})
	ctx := context.Background()
	id, err := f.mgr.Submit(ctx, seedConfig())
	require.Error(t, err)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusError, status.Status)
}

func TestUnknownJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), nil)
	ctx := context.Background()

	require.ErrorIs(t, f.mgr.Stop(ctx, "ghost"), crawler.ErrJobNotFound)
	_, err := f.mgr.Status(ctx, "ghost")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
	_, err = f.mgr.Result(ctx, "ghost")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
	_, err = f.mgr.Export(ctx, "ghost", "json")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
	require.NotPanics(t, func() { f.mgr.RunJob(ctx, "ghost") })
}

func TestExport(t *testing.T) {
	t.Parallel()

	f := newFixture(t, site(), nil)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, seedConfig())
	require.NoError(t, err)

	_, err = f.mgr.Export(ctx, id, "json")
	require.ErrorIs(t, err, crawler.ErrArtifactsNotFound, "queued job has nothing to export")

	f.mgr.RunJob(ctx, id)

	file, err := f.mgr.Export(ctx, id, "graphml")
	require.NoError(t, err)
	assert.Equal(t, id+".graphml", file.Name)
	_, err = f.blobs.GetObject(ctx, id+"/exports/"+id+".graphml")
	require.NoError(t, err)

	_, err = f.mgr.Export(ctx, id, "docx")
	require.ErrorIs(t, err, crawler.ErrUnsupportedFormat)

	list, err := f.mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
