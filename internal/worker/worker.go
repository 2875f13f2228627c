// Package worker implements the loop that pulls crawl jobs off the queue.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

// Runner executes one queued job to completion.
type Runner interface {
	RunJob(ctx context.Context, jobID string)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, jobID string)

// RunJob calls f.
func (f RunnerFunc) RunJob(ctx context.Context, jobID string) {
	f(ctx, jobID)
}

// Worker consumes queue items and hands them to the job runner.
type Worker struct {
	queue  crawler.Queue
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		runner: runner,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Debug("worker exiting", zap.Error(err))
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.runner.RunJob(ctx, item.JobID)
	}
}
