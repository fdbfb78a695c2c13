// Package store keeps incremental per-worker scoring stats.
package store

import (
	"context"
	"sync"

	"gigsafe/internal/scoring/models"
	id "gigsafe/pkg/domain"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	stats map[id.WorkerID]models.Stats
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{stats: make(map[id.WorkerID]models.Stats)}
}

// Get returns zero stats for a worker with no scored activity.
func (s *InMemoryStore) Get(_ context.Context, workerID id.WorkerID) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats[workerID], nil
}

func (s *InMemoryStore) Put(_ context.Context, workerID id.WorkerID, stats models.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[workerID] = stats
	return nil
}

// All returns a copy of every worker's stats.
func (s *InMemoryStore) All(_ context.Context) (map[id.WorkerID]models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.WorkerID]models.Stats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out, nil
}
