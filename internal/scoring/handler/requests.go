package handler

import (
	"strings"
	"time"

	actmodels "gigsafe/internal/activity/models"
	credmodels "gigsafe/internal/credential/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

// ActivityRequest is the body of POST /activities. Field names follow the
// trip export format used by the fleet feeds.
type ActivityRequest struct {
	ActivityID        string   `json:"trip_id,omitempty"`
	WorkerID          string   `json:"worker_id"`
	Timestamp         string   `json:"timestamp"`
	DistanceKm        float64  `json:"distance_km"`
	DurationMin       float64  `json:"duration_minutes"`
	AvgSpeedKmh       float64  `json:"avg_speed_kmh"`
	MaxSpeedKmh       float64  `json:"max_speed_kmh"`
	RouteDeviation    float64  `json:"route_deviation_score"`
	NightFlag         bool     `json:"is_night,omitempty"`
	Weekend           bool     `json:"is_weekend,omitempty"`
	Region            string   `json:"region,omitempty"`
	Lat               *float64 `json:"lat,omitempty"`
	Lon               *float64 `json:"lon,omitempty"`
	City              string   `json:"city,omitempty"`
	VisitType         string   `json:"visit_type,omitempty"`
	AccessAttempt     bool     `json:"access_attempt,omitempty"`
	TransactionAmount float64  `json:"transaction_amount,omitempty"`

	parsed actmodels.Activity
}

func (r *ActivityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	workerID, err := id.ParseWorkerID(r.WorkerID)
	if err != nil {
		return err
	}
	var activityID id.ActivityID
	if strings.TrimSpace(r.ActivityID) != "" {
		if activityID, err = id.ParseActivityID(r.ActivityID); err != nil {
			return err
		}
	}
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return err
	}
	visit, err := actmodels.ParseVisitType(r.VisitType)
	if err != nil {
		return err
	}
	if (r.Lat == nil) != (r.Lon == nil) {
		return dErrors.New(dErrors.CodeValidation, "lat and lon must be given together")
	}
	if r.TransactionAmount < 0 {
		return dErrors.New(dErrors.CodeValidation, "transaction_amount must not be negative")
	}

	a := actmodels.Activity{
		ID:                activityID,
		WorkerID:          workerID,
		Timestamp:         ts,
		DistanceKm:        r.DistanceKm,
		DurationMin:       r.DurationMin,
		AvgSpeedKmh:       r.AvgSpeedKmh,
		MaxSpeedKmh:       r.MaxSpeedKmh,
		RouteDeviation:    r.RouteDeviation,
		NightFlag:         r.NightFlag,
		Weekend:           r.Weekend,
		Region:            strings.TrimSpace(r.Region),
		VisitType:         visit,
		AccessAttempt:     r.AccessAttempt,
		TransactionAmount: r.TransactionAmount,
	}
	if r.Lat != nil {
		a.Location = &credmodels.Location{Lat: *r.Lat, Lon: *r.Lon, City: strings.TrimSpace(r.City)}
	}
	r.parsed = a
	return nil
}

func (r *ActivityRequest) Parsed() actmodels.Activity {
	return r.parsed
}

// parseTimestamp accepts RFC3339 or a zone-less "YYYY-MM-DD HH:MM:SS", read
// as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateTime, raw); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeValidation, "timestamp must be RFC3339 or YYYY-MM-DD HH:MM:SS")
}
