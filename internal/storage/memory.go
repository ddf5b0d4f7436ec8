package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/forPelevin/vidsum/internal/domain/jobs"
)

// Memory keeps Jobs in process memory. Every read and write copies the Job
// so callers never share maps with the store.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]jobs.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]jobs.Job)}
}

func (m *Memory) Create(_ context.Context, j jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return ErrExists
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

func (m *Memory) Save(_ context.Context, j jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (jobs.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

func (m *Memory) List(_ context.Context, limit int) ([]jobs.Job, error) {
	m.mu.RLock()
	out := make([]jobs.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Clone())
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindCompleted(_ context.Context, kind jobs.Kind, sourceKey string) (jobs.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  jobs.Job
		found bool
	)
	for _, j := range m.jobs {
		if j.Kind != kind || j.SourceKey != sourceKey || j.Status != jobs.StatusCompleted {
			continue
		}
		if !found || j.CreatedAt.After(best.CreatedAt) {
			best, found = j, true
		}
	}
	if !found {
		return jobs.Job{}, ErrNotFound
	}
	return best.Clone(), nil
}

func sortNewestFirst(js []jobs.Job) {
	sort.Slice(js, func(a, b int) bool {
		if js[a].CreatedAt.Equal(js[b].CreatedAt) {
			return js[a].ID > js[b].ID
		}
		return js[a].CreatedAt.After(js[b].CreatedAt)
	})
}
