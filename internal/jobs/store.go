package jobs

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Job state is lost on restart, which is
// acceptable for single-instance deployments; a restart also drops the queue
// the jobs were waiting in.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*ProcessJob
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*ProcessJob)}
}

// SaveJob stores a copy of the job so later mutations by the caller do not
// leak into readers.
func (s *MemoryStore) SaveJob(job *ProcessJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
}

// GetJob returns a copy of the job with the given ID.
func (s *MemoryStore) GetJob(id string) (*ProcessJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// ListJobs returns copies of all jobs, newest first.
func (s *MemoryStore) ListJobs() []*ProcessJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ProcessJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

var _ Store = (*MemoryStore)(nil)
