package models

import (
	"strings"
	"time"

	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

// DateLayout is the join date format used both in storage and in the hash input.
const DateLayout = "2006-01-02"

// WorkerType distinguishes delivery riders from banking correspondent agents.
type WorkerType string

const (
	WorkerTypeDelivery     WorkerType = "delivery"
	WorkerTypeBankingAgent WorkerType = "banking_agent"
)

func ParseWorkerType(s string) (WorkerType, error) {
	switch WorkerType(strings.ToLower(strings.TrimSpace(s))) {
	case WorkerTypeDelivery:
		return WorkerTypeDelivery, nil
	case WorkerTypeBankingAgent:
		return WorkerTypeBankingAgent, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "type must be delivery or banking_agent")
}

// Location is a point with an optional city label.
type Location struct {
	Lat  float64
	Lon  float64
	City string
}

func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180 && !(l.Lat == 0 && l.Lon == 0)
}

// DefaultLocation is reported when a worker has no known position (Jaipur).
var DefaultLocation = Location{Lat: 26.9124, Lon: 75.7873, City: "Jaipur"}

// Worker is an onboarded worker identity record. Values are immutable: every
// change produces a new value through the credential service.
type Worker struct {
	ID         id.WorkerID
	NationalID id.NationalID
	JoinDate   time.Time
	Type       WorkerType
	// Affiliation is the delivery company or, for banking agents, the bank.
	Affiliation string

	// Banking agent authorization. Zero for delivery workers.
	AuthorizationExpiry time.Time
	AePSEnabled         bool

	CredentialHash string
	IssuedAt       time.Time

	HomeLocation *Location
	RegisteredAt time.Time
}

// NewWorker validates an onboarding record.
func NewWorker(workerID id.WorkerID, nationalID id.NationalID, joinDate time.Time, typ WorkerType, affiliation string, registeredAt time.Time) (Worker, error) {
	affiliation = strings.TrimSpace(affiliation)
	switch {
	case workerID == "":
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "worker id is required")
	case nationalID == "":
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "national id is required")
	case joinDate.IsZero():
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "join date is required")
	case joinDate.After(registeredAt):
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "join date cannot be in the future")
	case typ != WorkerTypeDelivery && typ != WorkerTypeBankingAgent:
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "unknown worker type")
	case affiliation == "":
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "affiliation is required")
	case strings.Contains(affiliation, "|"):
		return Worker{}, dErrors.New(dErrors.CodeInvariantViolation, "affiliation must not contain '|'")
	}
	y, m, d := joinDate.Date()
	return Worker{
		ID:           workerID,
		NationalID:   nationalID,
		JoinDate:     time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Type:         typ,
		Affiliation:  affiliation,
		RegisteredAt: registeredAt,
	}, nil
}

// HasCredential reports whether a credential is currently issued.
func (w Worker) HasCredential() bool {
	return w.CredentialHash != ""
}

// IsBankingAgent reports whether the worker is a banking correspondent agent.
func (w Worker) IsBankingAgent() bool {
	return w.Type == WorkerTypeBankingAgent
}

// AuthorizationValid reports whether a banking agent may operate at t.
// Delivery workers carry no authorization and are always valid.
func (w Worker) AuthorizationValid(t time.Time) bool {
	if !w.IsBankingAgent() {
		return true
	}
	return !w.AuthorizationExpiry.IsZero() && t.Before(w.AuthorizationExpiry)
}

// JoinDateString returns the join date in DateLayout.
func (w Worker) JoinDateString() string {
	return w.JoinDate.Format(DateLayout)
}

// IdentityUpdate corrects identity fields during reissue. Nil fields are kept.
type IdentityUpdate struct {
	NationalID *id.NationalID
	JoinDate   *time.Time
}

// Apply returns a copy of w with the update applied.
func (u IdentityUpdate) Apply(w Worker) Worker {
	if u.NationalID != nil {
		w.NationalID = *u.NationalID
	}
	if u.JoinDate != nil {
		y, m, d := u.JoinDate.Date()
		w.JoinDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return w
}
