package memory

import (
	"context"
	"sort"
	"sync"

	id "gigsafe/pkg/domain"
	audit "gigsafe/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	byWork map[id.WorkerID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byWork: make(map[id.WorkerID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if event.WorkerID != "" {
		s.byWork[event.WorkerID] = append(s.byWork[event.WorkerID], len(s.events)-1)
	}
	return nil
}

// ListByWorker returns the worker's events, newest first.
func (s *InMemoryStore) ListByWorker(_ context.Context, workerID id.WorkerID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byWork[workerID]
	out := make([]audit.Event, 0, len(idx))
	for i := len(idx) - 1; i >= 0; i-- {
		out = append(out, s.events[idx[i]])
	}
	return out, nil
}

// ListRecent returns the most recent limit events across all workers.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	out := append([]audit.Event(nil), s.events...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
