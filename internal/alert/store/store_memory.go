// Package store records alerts and their lifecycle transitions.
package store

import (
	"context"
	"sort"
	"sync"

	"gigsafe/internal/alert/models"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	alerts map[id.AlertID]models.Alert
	order  []id.AlertID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{alerts: make(map[id.AlertID]models.Alert)}
}

func (s *InMemoryStore) Save(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[a.ID]; exists {
		return sentinel.ErrConflict
	}
	s.alerts[a.ID] = a
	s.order = append(s.order, a.ID)
	return nil
}

// Update replaces the alert when its stored state is still expected.
func (s *InMemoryStore) Update(_ context.Context, a models.Alert, expected models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.alerts[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.State != expected {
		return sentinel.ErrConflict
	}
	s.alerts[a.ID] = a
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, alertID id.AlertID) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return models.Alert{}, sentinel.ErrNotFound
	}
	return a, nil
}

// List returns matching alerts, newest first.
func (s *InMemoryStore) List(_ context.Context, f models.Filter) ([]models.Alert, error) {
	s.mu.RLock()
	out := make([]models.Alert, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		if a := s.alerts[s.order[i]]; f.Matches(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountOpen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.State == models.StateOpen {
			n++
		}
	}
	return n, nil
}
