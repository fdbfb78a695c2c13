package models

import (
	"time"

	actmodels "gigsafe/internal/activity/models"
	credmodels "gigsafe/internal/credential/models"
	scoremodels "gigsafe/internal/scoring/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

// Type names the rule that raised an alert.
type Type string

const (
	TypeRashDriving        Type = "RashDriving"
	TypeRouteDeviation     Type = "RouteDeviation"
	TypeUnusualTiming      Type = "UnusualTiming"
	TypeUnauthorizedAccess Type = "UnauthorizedAccess"
	TypeBehavioralAnomaly  Type = "BehavioralAnomaly"
)

// Severity mirrors the score tier at evaluation time.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// SeverityFor maps a score tier to an alert severity. Unscored activity never
// reaches the dispatcher, so an empty tier falls back to Low.
func SeverityFor(t scoremodels.Tier) Severity {
	switch t {
	case scoremodels.TierHigh:
		return SeverityHigh
	case scoremodels.TierMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

type State string

const (
	StateOpen         State = "Open"
	StateAcknowledged State = "Acknowledged"
	StateResolved     State = "Resolved"
)

func ParseState(s string) (State, error) {
	switch State(s) {
	case "":
		return "", nil
	case StateOpen, StateAcknowledged, StateResolved:
		return State(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "state must be Open, Acknowledged or Resolved")
}

// Alert is one recorded rule hit for an activity.
type Alert struct {
	ID             id.AlertID
	WorkerID       id.WorkerID
	ActivityID     id.ActivityID
	Type           Type
	Severity       Severity
	Score          float64
	Message        string
	State          State
	RaisedAt       time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}

// Acknowledge moves an Open alert to Acknowledged. changed is false when the
// alert was already acknowledged.
func (a Alert) Acknowledge(at time.Time) (next Alert, changed bool, err error) {
	switch a.State {
	case StateOpen:
		a.State = StateAcknowledged
		a.AcknowledgedAt = &at
		return a, true, nil
	case StateAcknowledged:
		return a, false, nil
	default:
		return a, false, dErrors.New(dErrors.CodeInvalidState, "resolved alerts cannot be acknowledged")
	}
}

// Resolve closes an Open or Acknowledged alert. Resolving twice is a no-op.
func (a Alert) Resolve(at time.Time) (next Alert, changed bool) {
	if a.State == StateResolved {
		return a, false
	}
	a.State = StateResolved
	a.ResolvedAt = &at
	return a, true
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	WorkerID id.WorkerID
	State    State
	Limit    int
}

// Matches reports whether a satisfies the filter, ignoring Limit.
func (f Filter) Matches(a Alert) bool {
	if f.WorkerID != "" && a.WorkerID != f.WorkerID {
		return false
	}
	if f.State != "" && a.State != f.State {
		return false
	}
	return true
}

// Evaluation is everything the rule table looks at for one scored activity.
type Evaluation struct {
	Activity actmodels.Activity
	Verdict  actmodels.Verdict
	Worker   credmodels.Worker
	Score    scoremodels.RiskScore
}

// Thresholds parameterize the feature rules.
type Thresholds struct {
	MaxSpeedKmh    float64
	RouteDeviation float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxSpeedKmh: 80, RouteDeviation: 20}
}

// Candidate is a rule hit before deduplication.
type Candidate struct {
	Type    Type
	Message string
}
