package crawler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Job is the live state of one crawl run. Readers take snapshots while the
// engine writes.
type Job struct {
	ID        string
	Config    CrawlConfig
	CreatedAt time.Time

	stop atomic.Bool

	mu       sync.RWMutex
	status   JobStatus
	errText  string
	started  *time.Time
	finished *time.Time
	nodes    map[string]NodeRecord
	order    []string
	edges    []EdgeRecord
}

// NewJob registers a queued job.
func NewJob(id string, cfg CrawlConfig, now time.Time) *Job {
	return &Job{
		ID:        id,
		Config:    cfg,
		CreatedAt: now,
		status:    JobStatusQueued,
		nodes:     make(map[string]NodeRecord),
	}
}

// RequestStop asks the traversal loop to exit at its next iteration.
func (j *Job) RequestStop() {
	j.stop.Store(true)
}

// StopRequested reports whether RequestStop was called.
func (j *Job) StopRequested() bool {
	return j.stop.Load()
}

// Status returns the current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// MarkRunning moves a queued job to running.
func (j *Job) MarkRunning(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobStatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.status, JobStatusRunning)
	}
	j.status = JobStatusRunning
	j.started = &now
	return nil
}

// Finish moves the job to a terminal status. A queued job may only fail.
func (j *Job) Finish(status JobStatus, errText string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	switch {
	case j.status == JobStatusRunning:
	case j.status == JobStatusQueued && status == JobStatusError:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.status, status)
	}
	j.status = status
	j.errText = errText
	j.finished = &now
	return nil
}

// RecordPage stores a node and the edges found on it. A URL already recorded is ignored.
func (j *Job) RecordPage(node NodeRecord, edges []EdgeRecord) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.nodes[node.URL]; exists {
		return false
	}
	j.nodes[node.URL] = node
	j.order = append(j.order, node.URL)
	j.edges = append(j.edges, edges...)
	return true
}

// Summary returns a status snapshot.
func (j *Job) Summary() JobSummary {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSummary{
		RunID:      j.ID,
		Status:     j.status,
		Error:      j.errText,
		TotalNodes: len(j.nodes),
		TotalEdges: len(j.edges),
		Limit:      j.Config.HardLinkLimit,
		SeedURL:    j.Config.SeedURL,
		CreatedAt:  j.CreatedAt,
		StartedAt:  copyTime(j.started),
		FinishedAt: copyTime(j.finished),
	}
}

// Result returns nodes in visit order without bodies, plus all edges.
func (j *Job) Result() JobResult {
	nodes, edges := j.Graph()
	for i := range nodes {
		nodes[i] = nodes[i].WithoutBody()
	}
	return JobResult{
		RunID:  j.ID,
		Status: j.Status(),
		Nodes:  nodes,
		Edges:  edges,
	}
}

// Graph returns copies of the nodes (in visit order, bodies included) and edges.
func (j *Job) Graph() ([]NodeRecord, []EdgeRecord) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	nodes := make([]NodeRecord, 0, len(j.order))
	for _, u := range j.order {
		nodes = append(nodes, j.nodes[u])
	}
	edges := make([]EdgeRecord, len(j.edges))
	copy(edges, j.edges)
	return nodes, edges
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
