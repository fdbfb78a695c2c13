package verification

import (
	"time"

	credmodels "gigsafe/internal/credential/models"
	scoremodels "gigsafe/internal/scoring/models"
)

// Reasons reported in the safety block when no score is available.
const (
	SafetyLookupFailed = "RiskLookupFailed"
)

// Location sources, in fallback order.
const (
	LocationLastActivity = "last_activity"
	LocationOnboarding   = "onboarding"
	LocationDefault      = "default"
)

// Result is the record returned to a field verifier.
type Result struct {
	Status     credmodels.VerificationStatus `json:"status"`
	Reason     string                        `json:"reason,omitempty"`
	VerifiedAt time.Time                     `json:"verified_at"`
	Identity   *Identity                     `json:"identity,omitempty"`
	Employment *Employment                   `json:"employment,omitempty"`
	Safety     *Safety                       `json:"safety,omitempty"`
	Location   *Location                     `json:"location,omitempty"`
}

type Identity struct {
	WorkerID   string    `json:"worker_id"`
	NationalID string    `json:"national_id"`
	JoinDate   string    `json:"join_date"`
	IssuedAt   time.Time `json:"issued_at"`
	WorkerType string    `json:"worker_type"`
}

// Employment carries the delivery company, or the bank and authorization for
// banking agents.
type Employment struct {
	Company             string     `json:"company,omitempty"`
	Bank                string     `json:"bank,omitempty"`
	AuthorizationExpiry *time.Time `json:"authorization_expiry,omitempty"`
	AePSEnabled         *bool      `json:"aeps_enabled,omitempty"`
	AuthorizationValid  *bool      `json:"authorization_valid,omitempty"`
}

type Safety struct {
	Status         scoremodels.Status      `json:"status"`
	UnscoredReason string                  `json:"unscored_reason,omitempty"`
	Score          float64                 `json:"score"`
	Tier           scoremodels.Tier        `json:"tier,omitempty"`
	Breakdown      []scoremodels.Component `json:"breakdown,omitempty"`
}

type Location struct {
	Lat    float64    `json:"lat"`
	Lon    float64    `json:"lon"`
	City   string     `json:"city,omitempty"`
	Source string     `json:"source"`
	SeenAt *time.Time `json:"seen_at,omitempty"`
}

func identityOf(w credmodels.Worker) *Identity {
	return &Identity{
		WorkerID:   string(w.ID),
		NationalID: w.NationalID.Masked(),
		JoinDate:   w.JoinDateString(),
		IssuedAt:   w.IssuedAt,
		WorkerType: string(w.Type),
	}
}

func employmentOf(w credmodels.Worker, at time.Time) *Employment {
	if !w.IsBankingAgent() {
		return &Employment{Company: w.Affiliation}
	}
	e := &Employment{Bank: w.Affiliation}
	aeps := w.AePSEnabled
	valid := w.AuthorizationValid(at)
	e.AePSEnabled = &aeps
	e.AuthorizationValid = &valid
	if !w.AuthorizationExpiry.IsZero() {
		expiry := w.AuthorizationExpiry
		e.AuthorizationExpiry = &expiry
	}
	return e
}

func safetyOf(score scoremodels.RiskScore) *Safety {
	return &Safety{
		Status:         score.Status,
		UnscoredReason: score.UnscoredReason,
		Score:          score.Score,
		Tier:           score.Tier,
		Breakdown:      score.Breakdown,
	}
}
