package crawler

import "errors"

var (
	// ErrJobNotFound is returned when a run id is not registered.
	ErrJobNotFound = errors.New("job not found")
	// ErrArtifactsNotFound is returned when a job has no persisted artifacts yet.
	ErrArtifactsNotFound = errors.New("artifacts not found")
	// ErrObjectNotFound is returned by blob stores for missing paths.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidTransition is returned when a job status change is not allowed.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrUnsupportedFormat is returned for unknown export formats.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrQueueClosed is returned by queues that have been shut down.
	ErrQueueClosed = errors.New("queue closed")
	// ErrInvalidConfig wraps crawl configuration validation failures.
	ErrInvalidConfig = errors.New("invalid crawl config")
)
