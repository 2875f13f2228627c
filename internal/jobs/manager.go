// Package jobs owns crawl job lifecycles: creation, background execution,
// stop requests, status/result snapshots, persistence and export.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/artifacts"
	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
	"github.com/JakeFAU/linkgraph-crawler/internal/export"
	"github.com/JakeFAU/linkgraph-crawler/internal/metrics"
)

const (
	// TimeoutMessage is the job error text recorded when the global timeout ends a crawl.
	TimeoutMessage = "global timeout exceeded"

	defaultPersistTimeout = 30 * time.Second
)

// Enqueuer accepts jobs for background execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
}

// Deps are the collaborators of a Manager. Summaries and Publisher are optional.
type Deps struct {
	Jobs      crawler.JobStore
	Blobs     crawler.BlobStore
	Summaries crawler.SummaryStore
	Publisher crawler.Publisher
	Transport crawler.Transport
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Queue     Enqueuer
	// Topic receives a completion event per finished job.
	Topic string
	// PersistTimeout bounds each post-run step: artifact save, summary write and publish.
	PersistTimeout time.Duration
	EngineOptions  []crawler.EngineOption
}

// Manager coordinates jobs.
type Manager struct {
	jobs           crawler.JobStore
	artifacts      *artifacts.Store
	exporter       *export.Exporter
	summaries      crawler.SummaryStore
	publisher      crawler.Publisher
	engine         *crawler.Engine
	ids            crawler.IDGenerator
	clock          crawler.Clock
	queue          Enqueuer
	topic          string
	persistTimeout time.Duration
	logger         *zap.Logger
}

// CompletionEvent is published when a job reaches a terminal status.
type CompletionEvent struct {
	Event string `json:"event"`
	crawler.JobSummary
}

// ExportFile is an export payload with its download name.
type ExportFile = export.File

// New constructs a Manager.
func New(deps Deps, logger *zap.Logger) (*Manager, error) {
	switch {
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Transport == nil:
		return nil, errors.New("transport is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	persistTimeout := deps.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	store := artifacts.New(deps.Blobs)
	return &Manager{
		jobs:           deps.Jobs,
		artifacts:      store,
		exporter:       export.New(store),
		summaries:      deps.Summaries,
		publisher:      deps.Publisher,
		engine:         crawler.NewEngine(deps.Transport, deps.Clock, logger, deps.EngineOptions...),
		ids:            deps.IDs,
		clock:          deps.Clock,
		queue:          deps.Queue,
		topic:          deps.Topic,
		persistTimeout: persistTimeout,
		logger:         logger,
	}, nil
}

// Create validates cfg and registers a queued job under a fresh run id.
func (m *Manager) Create(ctx context.Context, cfg crawler.CrawlConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	job := crawler.NewJob(id, cfg, m.clock.Now())
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	m.logger.Info("job created",
		zap.String("run_id", id),
		zap.String("seed", cfg.SeedURL),
		zap.String("method", string(cfg.SearchMethod)),
	)
	return id, nil
}

// Start hands a queued job to the worker pool and returns immediately.
func (m *Manager) Start(ctx context.Context, id string) error {
	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if m.queue == nil {
		return errors.New("job queue is not configured")
	}
	item := crawler.QueueItem{JobID: id, Submitted: m.clock.Now().UnixNano()}
	if err := m.queue.Enqueue(ctx, item); err != nil {
		if finishErr := job.Finish(crawler.JobStatusError, "enqueue failed: "+err.Error(), m.clock.Now()); finishErr != nil {
			m.logger.Warn("mark unqueued job failed", zap.String("run_id", id), zap.Error(finishErr))
		}
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Submit creates and starts a job.
func (m *Manager) Submit(ctx context.Context, cfg crawler.CrawlConfig) (string, error) {
	id, err := m.Create(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := m.Start(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

// Stop asks a job to halt at its next loop iteration.
func (m *Manager) Stop(ctx context.Context, id string) error {
	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	job.RequestStop()
	m.logger.Info("stop requested", zap.String("run_id", id))
	return nil
}

// Status returns a snapshot of a job's lifecycle and counters.
func (m *Manager) Status(ctx context.Context, id string) (crawler.JobSummary, error) {
	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return crawler.JobSummary{}, err
	}
	return job.Summary(), nil
}

// Result returns the collected graph without page bodies.
func (m *Manager) Result(ctx context.Context, id string) (crawler.JobResult, error) {
	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return crawler.JobResult{}, err
	}
	return job.Result(), nil
}

// List returns summaries of every known job.
func (m *Manager) List(ctx context.Context) ([]crawler.JobSummary, error) {
	all, err := m.jobs.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]crawler.JobSummary, 0, len(all))
	for _, job := range all {
		out = append(out, job.Summary())
	}
	return out, nil
}

// Export renders a job's persisted artifacts and stores a copy of the export.
func (m *Manager) Export(ctx context.Context, id, format string) (ExportFile, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return ExportFile{}, err
	}
	if _, err := m.jobs.GetJob(ctx, id); err != nil {
		return ExportFile{}, err
	}
	file, err := m.exporter.Export(ctx, id, f)
	if err != nil {
		return ExportFile{}, err
	}
	if _, err := m.artifacts.SaveExport(ctx, id, file.Name, file.ContentType, file.Data); err != nil {
		m.logger.Warn("store export copy failed", zap.String("run_id", id), zap.Error(err))
	}
	return file, nil
}

// RunJob drives a queued job to a terminal status. It never panics; engine
// faults become status error with partial results kept.
func (m *Manager) RunJob(ctx context.Context, id string) {
	logger := m.logger.With(zap.String("run_id", id))
	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		logger.Error("run unknown job", zap.Error(err))
		return
	}
	if err := job.MarkRunning(m.clock.Now()); err != nil {
		logger.Warn("job not runnable", zap.Error(err))
		return
	}
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()
	logger.Info("job running")

	outcome, runErr := m.runEngine(ctx, job)
	status, errText := classify(outcome, runErr)

	nodes, edges := job.Graph()
	saveCtx, cancel := m.persistContext(ctx)
	err = m.artifacts.Save(saveCtx, id, nodes, edges, job.Config.StoreBodies)
	cancel()
	if err != nil {
		logger.Error("persist artifacts failed", zap.Error(err))
		status = crawler.JobStatusError
		errText = "persist artifacts: " + err.Error()
	}
	if err := job.Finish(status, errText, m.clock.Now()); err != nil {
		logger.Error("finish job failed", zap.Error(err))
	}
	metrics.ObserveJob(string(status))

	summary := job.Summary()
	logger.Info("job done",
		zap.String("status", string(summary.Status)),
		zap.String("outcome", string(outcome)),
		zap.Int("nodes", summary.TotalNodes),
		zap.Int("edges", summary.TotalEdges),
		zap.String("error", summary.Error),
	)

	if m.summaries != nil {
		bare := make([]crawler.NodeRecord, len(nodes))
		for i, n := range nodes {
			bare[i] = n.WithoutBody()
		}
		saveCtx, cancel := m.persistContext(ctx)
		if err := m.summaries.SaveJob(saveCtx, summary, bare); err != nil {
			logger.Error("save job summary failed", zap.Error(err))
		}
		cancel()
	}
	if m.publisher != nil && m.topic != "" {
		event := CompletionEvent{Event: "crawl.completed", JobSummary: summary}
		pubCtx, cancel := m.persistContext(ctx)
		if _, err := m.publisher.Publish(pubCtx, m.topic, event); err != nil {
			logger.Error("publish completion failed", zap.Error(err))
		}
		cancel()
	}
}

// persistContext outlives cancellation of ctx; each post-run write gets its own budget.
func (m *Manager) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.persistTimeout)
}

// runEngine runs the traversal, converting a panic into an error.
func (m *Manager) runEngine(ctx context.Context, job *crawler.Job) (outcome crawler.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("engine panic", zap.String("run_id", job.ID), zap.Any("panic", r), zap.Stack("stack"))
			outcome = ""
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return m.engine.Run(ctx, job)
}

func classify(outcome crawler.Outcome, err error) (crawler.JobStatus, string) {
	if err != nil {
		return crawler.JobStatusError, err.Error()
	}
	switch outcome {
	case crawler.OutcomeStopped:
		return crawler.JobStatusStopped, ""
	case crawler.OutcomeTimedOut:
		return crawler.JobStatusFinished, TimeoutMessage
	default:
		return crawler.JobStatusFinished, ""
	}
}
