// Package store persists the append-only activity log and the verdict cache.
package store

import (
	"context"
	"sync"

	"gigsafe/internal/activity/models"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
)

// InMemoryStore keeps activities in per-worker append order.
type InMemoryStore struct {
	mu         sync.RWMutex
	activities map[id.ActivityID]models.Activity
	byWorker   map[id.WorkerID][]id.ActivityID
	verdicts   map[id.ActivityID]models.Verdict
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		activities: make(map[id.ActivityID]models.Activity),
		byWorker:   make(map[id.WorkerID][]id.ActivityID),
		verdicts:   make(map[id.ActivityID]models.Verdict),
	}
}

func (s *InMemoryStore) Append(_ context.Context, a models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activities[a.ID]; exists {
		return sentinel.ErrConflict
	}
	s.activities[a.ID] = a
	s.byWorker[a.WorkerID] = append(s.byWorker[a.WorkerID], a.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, activityID id.ActivityID) (models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[activityID]
	if !ok {
		return models.Activity{}, sentinel.ErrNotFound
	}
	return a, nil
}

// ListByWorker returns up to limit activities, newest first. limit <= 0 returns all.
func (s *InMemoryStore) ListByWorker(_ context.Context, workerID id.WorkerID, limit int) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byWorker[workerID]
	n := len(ids)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Activity, 0, n)
	for i := len(ids) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.activities[ids[i]])
	}
	return out, nil
}

// Latest returns the most recently appended activity for the worker.
func (s *InMemoryStore) Latest(_ context.Context, workerID id.WorkerID) (models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byWorker[workerID]
	if len(ids) == 0 {
		return models.Activity{}, sentinel.ErrNotFound
	}
	return s.activities[ids[len(ids)-1]], nil
}

// LatestWithLocation returns the newest activity that carries a location.
func (s *InMemoryStore) LatestWithLocation(_ context.Context, workerID id.WorkerID) (models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byWorker[workerID]
	for i := len(ids) - 1; i >= 0; i-- {
		if a := s.activities[ids[i]]; a.Location != nil {
			return a, nil
		}
	}
	return models.Activity{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveVerdict(_ context.Context, v models.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[v.ActivityID]; !ok {
		return sentinel.ErrNotFound
	}
	s.verdicts[v.ActivityID] = v
	return nil
}

func (s *InMemoryStore) FindVerdict(_ context.Context, activityID id.ActivityID) (models.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verdicts[activityID]
	if !ok {
		return models.Verdict{}, sentinel.ErrNotFound
	}
	return v, nil
}

// FindVerdicts returns cached verdicts for the given activities. Activities
// without a verdict are absent from the result.
func (s *InMemoryStore) FindVerdicts(_ context.Context, activityIDs []id.ActivityID) (map[id.ActivityID]models.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.ActivityID]models.Verdict, len(activityIDs))
	for _, aid := range activityIDs {
		if v, ok := s.verdicts[aid]; ok {
			out[aid] = v
		}
	}
	return out, nil
}
