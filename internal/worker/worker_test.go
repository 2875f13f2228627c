package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

func TestWorkerRunsDequeuedJobs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []crawler.QueueItem{{JobID: "job-1"}, {JobID: "job-2"}}}
	runner := &recordingRunner{}
	w := New(1, queue, runner, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.ids()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"job-1", "job-2"}, runner.ids())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerExitsWhenQueueClosed(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{closed: true}
	w := New(2, queue, &recordingRunner{}, nil)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on closed queue")
	}
}

func TestWorkerSurvivesTransientDequeueErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{failures: 2, items: []crawler.QueueItem{{JobID: "after-errors"}}}
	runner := &recordingRunner{}
	go New(3, queue, runner, zap.NewNop()).Run(ctx)

	require.Eventually(t, func() bool {
		return len(runner.ids()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type fakeQueue struct {
	mu       sync.Mutex
	items    []crawler.QueueItem
	failures int
	closed   bool
}

func (q *fakeQueue) Enqueue(_ context.Context, job crawler.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	for {
		q.mu.Lock()
		if q.failures > 0 {
			q.failures--
			q.mu.Unlock()
			return crawler.QueueItem{}, fmt.Errorf("transient broker error")
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return crawler.QueueItem{}, crawler.ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.QueueItem{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

type recordingRunner struct {
	mu  sync.Mutex
	got []string
}

func (r *recordingRunner) RunJob(_ context.Context, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, jobID)
}

func (r *recordingRunner) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestRunnerFuncAdapts(t *testing.T) {
	t.Parallel()

	var got string
	var r Runner = RunnerFunc(func(_ context.Context, id string) { got = id })
	r.RunJob(context.Background(), "job-7")
	require.Equal(t, "job-7", got)
}
