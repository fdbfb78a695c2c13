package oracle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gigsafe/internal/activity/models"
	"gigsafe/pkg/platform/circuit"
)

// ErrCircuitOpen is returned without calling the oracle while the breaker is
// open and the probe cooldown has not elapsed.
var ErrCircuitOpen = errors.New("oracle circuit open")

// Guarded bounds each call with a timeout and fails fast after repeated
// failures. Once the cooldown since the last failure elapses, one call is let
// through as a probe.
type Guarded struct {
	inner    Oracle
	timeout  time.Duration
	cooldown time.Duration
	breaker  *circuit.Breaker
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	lastFailure time.Time
}

type GuardOption func(*Guarded)

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) {
		if b != nil {
			g.breaker = b
		}
	}
}

func WithCooldown(d time.Duration) GuardOption {
	return func(g *Guarded) {
		g.cooldown = d
	}
}

func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guarded) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGuarded(inner Oracle, timeout time.Duration, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:    inner,
		timeout:  timeout,
		cooldown: 30 * time.Second,
		breaker:  circuit.New("oracle", circuit.WithFailureThreshold(5)),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Classify(ctx context.Context, fv models.FeatureVector) (models.Verdict, error) {
	if g.breaker.IsOpen() {
		g.mu.Lock()
		waiting := g.now().Sub(g.lastFailure) < g.cooldown
		g.mu.Unlock()
		if waiting {
			return models.Verdict{}, ErrCircuitOpen
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	v, err := g.inner.Classify(callCtx, fv)
	if err != nil {
		g.mu.Lock()
		g.lastFailure = g.now()
		g.mu.Unlock()
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "oracle circuit opened", "breaker", g.breaker.Name())
		}
		return models.Verdict{}, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "oracle circuit closed", "breaker", g.breaker.Name())
	}
	return v, nil
}

// State reports the breaker position for diagnostics.
func (g *Guarded) State() circuit.State {
	return g.breaker.State()
}
