// Package audit defines the append-only audit trail for credential and alert
// operations. Events are transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"

	id "gigsafe/pkg/domain"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers credential lifecycle events. These require
	// guaranteed persistence and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers verification failures and tamper detections.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as alert lifecycle changes.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventWorkerRegistered   AuditEvent = "worker_registered"
	EventCredentialIssued   AuditEvent = "credential_issued"
	EventCredentialRevoked  AuditEvent = "credential_revoked"
	EventCredentialReissued AuditEvent = "credential_reissued"

	EventCredentialVerified AuditEvent = "credential_verified"
	EventCredentialTampered AuditEvent = "credential_tampered"

	EventAlertRaised       AuditEvent = "alert_raised"
	EventAlertAcknowledged AuditEvent = "alert_acknowledged"
	EventAlertResolved     AuditEvent = "alert_resolved"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventWorkerRegistered:   CategoryCompliance,
	EventCredentialIssued:   CategoryCompliance,
	EventCredentialRevoked:  CategoryCompliance,
	EventCredentialReissued: CategoryCompliance,

	EventCredentialTampered: CategorySecurity,

	EventCredentialVerified: CategoryOperations,
	EventAlertRaised:        CategoryOperations,
	EventAlertAcknowledged:  CategoryOperations,
	EventAlertResolved:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one audit trail entry.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	WorkerID  id.WorkerID
	Action    string
	// Requester is the authenticated principal that triggered the action.
	Requester string
	Subject   string
	Decision  string
	Reason    string
	RequestID string
	ClientIP  string
	Client    string
}

// Store persists audit events. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByWorker(ctx context.Context, workerID id.WorkerID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
