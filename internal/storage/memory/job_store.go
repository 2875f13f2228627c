package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

// JobStore is the in-process registry of live jobs.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*crawler.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*crawler.Job),
	}
}

// CreateJob registers a new job.
func (s *JobStore) CreateJob(_ context.Context, job *crawler.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (*crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, crawler.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns every registered job, oldest first.
func (s *JobStore) ListJobs(_ context.Context) ([]*crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
