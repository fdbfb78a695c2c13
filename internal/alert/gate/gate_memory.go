// Package gate implements the per (worker, alert type) cooldown used to
// deduplicate alerts. Acquire is an atomic check-and-set: exactly one caller
// wins a key until it expires or its holder releases it.
package gate

import (
	"context"
	"sync"
	"time"

	id "gigsafe/pkg/domain"
)

// Key returns the gate key for a worker and alert type.
func Key(workerID id.WorkerID, alertType string) string {
	return "gigsafe:alert:cooldown:" + string(workerID) + ":" + alertType
}

type hold struct {
	owner   string
	expires time.Time
}

// InMemoryGate keeps holds in a mutex-guarded map. Expired holds are replaced
// lazily on the next Acquire.
type InMemoryGate struct {
	mu    sync.Mutex
	holds map[string]hold
	now   func() time.Time
}

func NewInMemory() *InMemoryGate {
	return &InMemoryGate{
		holds: make(map[string]hold),
		now:   time.Now,
	}
}

// NewInMemoryWithClock is used by tests that move time forward.
func NewInMemoryWithClock(now func() time.Time) *InMemoryGate {
	g := NewInMemory()
	g.now = now
	return g
}

func (g *InMemoryGate) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if h, ok := g.holds[key]; ok && now.Before(h.expires) {
		return false, nil
	}
	g.holds[key] = hold{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release drops the hold only when owner still holds it.
func (g *InMemoryGate) Release(_ context.Context, key, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.holds[key]; ok && h.owner == owner {
		delete(g.holds, key)
	}
	return nil
}
