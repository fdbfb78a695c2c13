package handler

import (
	"strings"
	"time"

	"gigsafe/internal/credential/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

// RegisterRequest is the body of POST /workers.
type RegisterRequest struct {
	WorkerID            string           `json:"worker_id"`
	NationalID          string           `json:"national_id"`
	JoinDate            string           `json:"join_date"`
	Type                string           `json:"type"`
	Affiliation         string           `json:"affiliation"`
	AuthorizationExpiry string           `json:"authorization_expiry,omitempty"`
	AePSEnabled         bool             `json:"aeps_enabled,omitempty"`
	Location            *LocationRequest `json:"location,omitempty"`

	parsed models.Worker
}

type LocationRequest struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	City string  `json:"city,omitempty"`
}

// Validate parses the request into a worker record (without RegisteredAt).
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Affiliation) > 128 {
		return dErrors.New(dErrors.CodeValidation, "affiliation must be at most 128 characters")
	}

	workerID, err := id.ParseWorkerID(r.WorkerID)
	if err != nil {
		return err
	}
	nationalID, err := id.ParseNationalID(r.NationalID)
	if err != nil {
		return err
	}
	joinDate, err := time.Parse(models.DateLayout, strings.TrimSpace(r.JoinDate))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "join_date must be YYYY-MM-DD")
	}
	typ, err := models.ParseWorkerType(r.Type)
	if err != nil {
		return err
	}
	affiliation := strings.TrimSpace(r.Affiliation)
	if affiliation == "" {
		return dErrors.New(dErrors.CodeValidation, "affiliation is required")
	}
	if strings.Contains(affiliation, models.PayloadDelimiter) {
		return dErrors.New(dErrors.CodeValidation, "affiliation must not contain '|'")
	}

	w := models.Worker{
		ID:          workerID,
		NationalID:  nationalID,
		JoinDate:    joinDate,
		Type:        typ,
		Affiliation: affiliation,
	}
	if typ == models.WorkerTypeBankingAgent {
		if r.AuthorizationExpiry == "" {
			return dErrors.New(dErrors.CodeValidation, "authorization_expiry is required for banking agents")
		}
		expiry, err := parseDateOrTime(r.AuthorizationExpiry)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "authorization_expiry must be YYYY-MM-DD or RFC3339")
		}
		w.AuthorizationExpiry = expiry
		w.AePSEnabled = r.AePSEnabled
	}
	if r.Location != nil {
		loc := models.Location{Lat: r.Location.Lat, Lon: r.Location.Lon, City: strings.TrimSpace(r.Location.City)}
		if !loc.Valid() {
			return dErrors.New(dErrors.CodeValidation, "location is out of range")
		}
		w.HomeLocation = &loc
	}
	r.parsed = w
	return nil
}

// Parsed returns the validated worker fields.
func (r *RegisterRequest) Parsed() models.Worker {
	return r.parsed
}

// ReissueRequest is the optional body of POST /workers/{id}/credential/reissue.
type ReissueRequest struct {
	NationalID string `json:"national_id,omitempty"`
	JoinDate   string `json:"join_date,omitempty"`

	update models.IdentityUpdate
}

func (r *ReissueRequest) Validate() error {
	if r == nil {
		return nil
	}
	if r.NationalID != "" {
		nid, err := id.ParseNationalID(r.NationalID)
		if err != nil {
			return err
		}
		r.update.NationalID = &nid
	}
	if r.JoinDate != "" {
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(r.JoinDate))
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "join_date must be YYYY-MM-DD")
		}
		r.update.JoinDate = &d
	}
	return nil
}

func (r *ReissueRequest) Update() models.IdentityUpdate {
	if r == nil {
		return models.IdentityUpdate{}
	}
	return r.update
}

func parseDateOrTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(models.DateLayout, s)
}
