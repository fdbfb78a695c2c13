// Package compliance provides the audit publisher used by the credential and
// alert services.
//
// Emit is fail-closed: the write is synchronous and an error means the calling
// operation must fail. Track is best-effort and only logs persistence errors;
// it is used for operational events such as alert acknowledgements.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "gigsafe/pkg/platform/audit"
	"gigsafe/pkg/requestcontext"
)

// Publisher writes audit events to a store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously persists event. Request metadata from ctx fills any
// fields the caller left empty.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.WorkerID == "" && event.Subject == "" {
		return fmt.Errorf("audit event requires WorkerID or Subject")
	}
	event = enrich(ctx, event)

	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncPersistFailures(string(event.Category))
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit persistence failed",
				"action", event.Action,
				"worker_id", event.WorkerID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	p.metrics.ObservePersistDuration(time.Since(start))
	p.metrics.IncEventsEmitted(string(event.Category))
	return nil
}

// Track persists event without failing the caller.
func (p *Publisher) Track(ctx context.Context, event audit.Event) {
	if err := p.Emit(ctx, event); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "audit event dropped",
			"action", event.Action,
			"error", err,
		)
	}
}

func enrich(ctx context.Context, event audit.Event) audit.Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.Requester == "" {
		event.Requester = requestcontext.Requester(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Client == "" {
		event.Client = requestcontext.ClientInfo(ctx)
	}
	return event
}
