package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/config"
	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Crawler.FollowRobotsTxt = false
	return &cfg
}

func TestBuildWiresLocalStorageAndAPI(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Manager())
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildFailsForMissingLocalDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	cfg.Storage.LocalDir = file
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "local blob store init failed")
}

func TestAppCrawlsThroughWorkers(t *testing.T) {
	t.Parallel()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><a href="/a">A</a></body></html>`))
		default:
			_, _ = w.Write([]byte(`<html><head><title>A</title></head><body></body></html>`))
		}
	}))
	defer site.Close()

	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.dispatch.Run(ctx)

	jobCfg := cfg.CrawlDefaults()
	jobCfg.SeedURL = site.URL + "/"
	id, err := app.Manager().Submit(context.Background(), jobCfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		summary, err := app.Manager().Status(context.Background(), id)
		return err == nil && summary.Status == crawler.JobStatusFinished
	}, 10*time.Second, 20*time.Millisecond)

	result, err := app.Manager().Result(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 2)

	file, err := app.Manager().Export(context.Background(), id, "graphml")
	require.NoError(t, err)
	require.True(t, strings.Contains(string(file.Data), site.URL+"/a"))
}
