package system

import (
	"context"
	"sort"
	"sync"
)

// MemoryScheduler keeps the registered jobs in memory. The cron runner reads
// them through Jobs.
type MemoryScheduler struct {
	jobs map[uint]CronJob
	mu   sync.RWMutex
}

// NewMemoryScheduler returns an empty scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{jobs: make(map[uint]CronJob)}
}

func (s *MemoryScheduler) CancelSchedule(_ context.Context, job CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, job.ID)
	return nil
}

func (s *MemoryScheduler) GenerateSchedule(_ context.Context, job CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Jobs returns the registered jobs ordered by id.
func (s *MemoryScheduler) Jobs() []CronJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
