package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(FetchResponse)
	return resp, args.Error(1)
}

func newTestPipeline(transport Transport, htmlOnly bool) *FetchPipeline {
	return NewFetchPipeline(
		transport,
		NewUserAgentPool([]string{"ua-1"}, seeded(1)),
		NewProxyPool([]string{"http://proxy:3128"}, seeded(2)),
		PipelineConfig{MaxConcurrency: 2, RequestTimeout: time.Second, HTMLOnly: htmlOnly},
		nil,
	)
}

func TestFetchPipelineSuccess(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{}
	transport.On("Fetch", mock.Anything, mock.MatchedBy(func(req FetchRequest) bool {
		return req.URL == "https://example.com/" &&
			req.UserAgent == "ua-1" &&
			req.Proxy == "http://proxy:3128" &&
			req.Timeout == time.Second &&
			req.Headers.Get("Accept") == acceptHeader
	})).Return(FetchResponse{
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte("<title>hi</title>"),
	}, nil).Once()

	res := newTestPipeline(transport, true).Fetch(context.Background(), "https://example.com/")
	require.Equal(t, FetchedWithBody, res.Outcome)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "<title>hi</title>", res.Body)
	require.True(t, res.HasBody())
	transport.AssertExpectations(t)
}

func TestFetchPipelineHTMLOnlyDropsBody(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{}
	transport.On("Fetch", mock.Anything, mock.Anything).Return(FetchResponse{
		StatusCode:  http.StatusOK,
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.7"),
	}, nil)

	res := newTestPipeline(transport, true).Fetch(context.Background(), "https://example.com/doc.pdf")
	require.Equal(t, FetchedWithoutBody, res.Outcome)
	require.Equal(t, "application/pdf", res.ContentType)
	require.Empty(t, res.Body)

	res = newTestPipeline(transport, false).Fetch(context.Background(), "https://example.com/doc.pdf")
	require.Equal(t, FetchedWithBody, res.Outcome)
}

func TestFetchPipelineSwallowsErrors(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{}
	transport.On("Fetch", mock.Anything, mock.Anything).Return(FetchResponse{}, errors.New("dial tcp: refused"))

	res := newTestPipeline(transport, true).Fetch(context.Background(), "https://down.example.com/")
	require.Equal(t, FetchFailed, res.Outcome)
	require.False(t, res.HasStatus())
}

func TestFetchPipelineKeepsStatusForErrorPages(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{}
	transport.On("Fetch", mock.Anything, mock.Anything).Return(FetchResponse{
		StatusCode:  http.StatusNotFound,
		ContentType: "text/html",
	}, nil)

	res := newTestPipeline(transport, true).Fetch(context.Background(), "https://example.com/missing")
	require.Equal(t, FetchedWithoutBody, res.Outcome)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFetchPipelineCanceledContext(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestPipeline(transport, true).Fetch(ctx, "https://example.com/")
	require.Equal(t, FetchFailed, res.Outcome)
	transport.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

type gateTransport struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	release  chan struct{}
}

func (g *gateTransport) Fetch(context.Context, FetchRequest) (FetchResponse, error) {
	n := g.inFlight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	<-g.release
	g.inFlight.Add(-1)
	return FetchResponse{StatusCode: http.StatusOK}, nil
}

func TestFetchPipelineBoundsConcurrency(t *testing.T) {
	t.Parallel()

	gate := &gateTransport{release: make(chan struct{})}
	pipeline := newTestPipeline(gate, true)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline.Fetch(context.Background(), "https://example.com/")
		}()
	}
	require.Eventually(t, func() bool { return gate.inFlight.Load() == 2 }, time.Second, time.Millisecond)
	close(gate.release)
	wg.Wait()
	require.Equal(t, int32(2), gate.peak.Load())
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, isHTML("text/html"))
	require.True(t, isHTML("TEXT/HTML; charset=ISO-8859-2"))
	require.True(t, isHTML("application/xhtml+xml"))
	require.False(t, isHTML("application/json"))
	require.False(t, isHTML(""))
}
