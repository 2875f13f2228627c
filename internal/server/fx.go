// Package server provides the application container: it builds every
// dependency from configuration and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/api"
	"github.com/JakeFAU/linkgraph-crawler/internal/clock/system"
	"github.com/JakeFAU/linkgraph-crawler/internal/config"
	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
	"github.com/JakeFAU/linkgraph-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/linkgraph-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/linkgraph-crawler/internal/id/uuid"
	"github.com/JakeFAU/linkgraph-crawler/internal/jobs"
	"github.com/JakeFAU/linkgraph-crawler/internal/logging"
	"github.com/JakeFAU/linkgraph-crawler/internal/metrics"
	memorypublisher "github.com/JakeFAU/linkgraph-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/linkgraph-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/linkgraph-crawler/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/linkgraph-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/linkgraph-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/linkgraph-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/linkgraph-crawler/internal/storage/postgres"
	"github.com/JakeFAU/linkgraph-crawler/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	manager      *jobs.Manager
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        *queueMemory.Queue
	fetcher      *collyfetcher.Fetcher
	gcs          *gcsstorage.BlobStore
	summaries    *pgstore.SummaryStore
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Development,
		Level:       cfg.Level,
		File: logging.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

// Build creates the application's dependencies. A nil logger is built from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Logging); err != nil {
			return nil, err
		}
	}
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("workers", cfg.Workers.Count),
	)

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	summaries, err := setupDatabase(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.fetcher = collyfetcher.New(collyfetcher.Config{
		MaxBodySize: cfg.Crawler.MaxResponseBytes,
		Timeout:     config.Seconds(cfg.Crawler.RequestTimeoutSeconds),
	})
	app.queue = queueMemory.NewQueue(cfg.Workers.QueueDepth)

	// Workers resolve the manager lazily; it needs the dispatcher as its queue.
	var manager *jobs.Manager
	app.dispatch = dispatcher.New(app.queue, worker.RunnerFunc(func(ctx context.Context, id string) {
		manager.RunJob(ctx, id)
	}), cfg.Workers.Count, logger.Named("worker"))

	manager, err = jobs.New(jobs.Deps{
		Jobs:      memoryStorage.NewJobStore(),
		Blobs:     blobStore,
		Summaries: summaries,
		Publisher: publisher,
		Transport: app.fetcher,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Queue:     app.dispatch,
		Topic:     cfg.PubSub.TopicName,
	}, logger.Named("jobs"))
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("job manager init failed: %w", err)
	}
	app.manager = manager

	var opts []api.Option
	if app.summaries != nil {
		opts = append(opts, api.WithReadinessCheck("postgres", app.summaries.Ping))
	}
	app.apiServer = api.NewServer(app.manager, *cfg, logger.Named("api"), opts...)
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Manager exposes the job manager for in-process use such as one-shot crawls.
func (a *App) Manager() *jobs.Manager {
	return a.manager
}

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the worker pool and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownTimeout := a.cfg.ShutdownTimeout()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	// Running jobs observe the canceled context as a stop and persist what they have.
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not finish before shutdown timeout")
	}

	a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure clients and flushes the logger.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.fetcher != nil {
		a.fetcher.CloseIdleConnections()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.summaries != nil {
		a.summaries.Close()
	}
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.StorageGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.gcs = store
		return store, nil
	case config.StorageLocal:
		app.logger.Info("using local storage backend", zap.String("path", cfg.LocalDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

// setupDatabase returns a nil store when no DSN is configured; the manager
// then skips summary rows.
func setupDatabase(ctx context.Context, app *App) (crawler.SummaryStore, error) {
	db := app.cfg.DB
	if db.DSN == "" {
		app.logger.Warn("no DSN specified for database, skipping summary store")
		return nil, nil
	}
	store, err := pgstore.NewSummaryStore(ctx, pgstore.Config{
		DSN:        db.DSN,
		JobsTable:  db.JobsTable,
		PagesTable: db.PagesTable,
		MaxConns:   db.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("summary store init failed: %w", err)
	}
	app.summaries = store
	app.logger.Info("summary store initialized",
		zap.String("jobs_table", db.JobsTable),
		zap.String("pages_table", db.PagesTable),
	)
	return store, nil
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	ps := app.cfg.PubSub
	if ps.TopicName == "" || ps.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.gcpPublisher = gcppublisher.New(client)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return app.gcpPublisher, nil
}
