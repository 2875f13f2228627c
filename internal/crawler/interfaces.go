package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore keeps the registry of live jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)
}

// BlobStore writes and reads raw artifacts by path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// SummaryStore records finished jobs and their pages in a queryable database.
type SummaryStore interface {
	SaveJob(ctx context.Context, summary JobSummary, nodes []NodeRecord) error
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Transport performs one HTTP GET and returns status, content type and body.
type Transport interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RobotsPolicy answers whether an agent may fetch a URL.
type RobotsPolicy interface {
	Allowed(agent string, rawURL string) bool
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run ids (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
