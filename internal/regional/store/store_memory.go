// Package store keeps the last-good regional snapshot across restarts.
package store

import (
	"context"
	"sync"

	"gigsafe/internal/regional/models"
)

// InMemoryStore keeps the last-good snapshot for the process lifetime.
type InMemoryStore struct {
	mu   sync.RWMutex
	snap *models.Snapshot
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Load(_ context.Context) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *InMemoryStore) Save(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}
