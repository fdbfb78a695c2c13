package store

import (
	"context"
	"sort"
	"sync"

	"gigsafe/internal/credential/models"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
)

// InMemoryStore keeps workers by id plus the hash index used by
// verify-by-hash. Values are copied in and out so callers never share state.
type InMemoryStore struct {
	mu      sync.RWMutex
	workers map[id.WorkerID]models.Worker
	byHash  map[string]id.WorkerID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workers: make(map[id.WorkerID]models.Worker),
		byHash:  make(map[string]id.WorkerID),
	}
}

// Create inserts a new worker. Returns sentinel.ErrConflict if the id exists.
func (s *InMemoryStore) Create(_ context.Context, w models.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[w.ID]; ok {
		return sentinel.ErrConflict
	}
	if w.CredentialHash != "" {
		if _, taken := s.byHash[w.CredentialHash]; taken {
			return sentinel.ErrConflict
		}
		s.byHash[w.CredentialHash] = w.ID
	}
	s.workers[w.ID] = w
	return nil
}

// Update replaces a worker and keeps the hash index in step.
func (s *InMemoryStore) Update(_ context.Context, w models.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.workers[w.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if w.CredentialHash != "" && w.CredentialHash != prev.CredentialHash {
		if owner, taken := s.byHash[w.CredentialHash]; taken && owner != w.ID {
			return sentinel.ErrConflict
		}
	}
	if prev.CredentialHash != "" {
		delete(s.byHash, prev.CredentialHash)
	}
	if w.CredentialHash != "" {
		s.byHash[w.CredentialHash] = w.ID
	}
	s.workers[w.ID] = w
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, workerID id.WorkerID) (models.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[workerID]
	if !ok {
		return models.Worker{}, sentinel.ErrNotFound
	}
	return w, nil
}

func (s *InMemoryStore) FindByHash(_ context.Context, hash string) (models.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workerID, ok := s.byHash[hash]
	if !ok {
		return models.Worker{}, sentinel.ErrNotFound
	}
	return s.workers[workerID], nil
}

// List returns all workers ordered by id.
func (s *InMemoryStore) List(_ context.Context) ([]models.Worker, error) {
	s.mu.RLock()
	out := make([]models.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountByType returns worker counts per type.
func (s *InMemoryStore) CountByType(_ context.Context) (map[models.WorkerType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.WorkerType]int)
	for _, w := range s.workers {
		counts[w.Type]++
	}
	return counts, nil
}
