package models

import (
	"math"
	"strings"
	"time"

	credmodels "gigsafe/internal/credential/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

// Night hours are before 06:00 or after 22:00 in the activity's local time.
const (
	NightEndsHour   = 6
	NightStartsHour = 22
)

// VisitType classifies a banking agent's field visit.
type VisitType string

const (
	VisitAccountOpening VisitType = "account_opening"
	VisitAePS           VisitType = "aeps_transaction"
	VisitLoanCollection VisitType = "loan_collection"
	VisitKYCUpdate      VisitType = "kyc_update"
	VisitPassbookEntry  VisitType = "passbook_entry"
	VisitCashDeposit    VisitType = "cash_deposit"
)

func ParseVisitType(s string) (VisitType, error) {
	v := VisitType(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "":
		return "", nil
	case VisitAccountOpening, VisitAePS, VisitLoanCollection, VisitKYCUpdate, VisitPassbookEntry, VisitCashDeposit:
		return v, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown visit type")
}

// Activity is one trip (delivery) or field visit (banking agent). Activities
// are append-only.
type Activity struct {
	ID       id.ActivityID
	WorkerID id.WorkerID
	// Timestamp keeps the offset supplied by the source; HourOfDay is derived
	// from it before storage normalizes the zone.
	Timestamp time.Time
	HourOfDay int

	DistanceKm     float64
	DurationMin    float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    float64
	RouteDeviation float64

	NightFlag bool
	Weekend   bool
	Region    string
	Location  *credmodels.Location

	// Banking agent visits.
	VisitType         VisitType
	AccessAttempt     bool
	TransactionAmount float64

	IngestedAt time.Time
}

// Prepare derives HourOfDay and Weekend from the timestamp and checks
// invariants.
func (a Activity) Prepare() (Activity, error) {
	switch {
	case a.ID == "":
		return a, dErrors.New(dErrors.CodeInvariantViolation, "activity id is required")
	case a.WorkerID == "":
		return a, dErrors.New(dErrors.CodeInvariantViolation, "worker id is required")
	case a.Timestamp.IsZero():
		return a, dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	for name, v := range map[string]float64{
		"distance_km":     a.DistanceKm,
		"duration_min":    a.DurationMin,
		"avg_speed_kmh":   a.AvgSpeedKmh,
		"max_speed_kmh":   a.MaxSpeedKmh,
		"route_deviation": a.RouteDeviation,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return a, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative number")
		}
	}
	if a.MaxSpeedKmh < a.AvgSpeedKmh {
		return a, dErrors.New(dErrors.CodeValidation, "max_speed_kmh must not be below avg_speed_kmh")
	}
	if a.Location != nil && !a.Location.Valid() {
		return a, dErrors.New(dErrors.CodeValidation, "location is out of range")
	}
	a.HourOfDay = a.Timestamp.Hour()
	wd := a.Timestamp.Weekday()
	a.Weekend = a.Weekend || wd == time.Saturday || wd == time.Sunday
	return a, nil
}

// IsNight reports a night-time activity.
func (a Activity) IsNight() bool {
	return a.NightFlag || a.HourOfDay < NightEndsHour || a.HourOfDay > NightStartsHour
}

// IsAePSVisit reports whether the visit was an AePS transaction.
func (a Activity) IsAePSVisit() bool {
	return a.VisitType == VisitAePS
}

// FeatureVector is the oracle input derived from one activity.
type FeatureVector struct {
	ActivityID        string  `json:"activity_id"`
	WorkerID          string  `json:"worker_id"`
	AvgSpeedKmh       float64 `json:"avg_speed_kmh"`
	MaxSpeedKmh       float64 `json:"max_speed_kmh"`
	DistanceKm        float64 `json:"distance_km"`
	DurationMin       float64 `json:"duration_minutes"`
	RouteDeviation    float64 `json:"route_deviation_score"`
	SpeedRatio        float64 `json:"speed_ratio"`
	DistancePerMinute float64 `json:"distance_per_minute"`
	TimeDeviation     float64 `json:"time_deviation"`
	HourOfDay         int     `json:"hour_of_day"`
	DayOfWeek         int     `json:"day_of_week"`
	IsNight           bool    `json:"is_night"`
	IsWeekend         bool    `json:"is_weekend"`
	IsPeakHour        bool    `json:"is_peak_hour"`
	SpeedVsSelf       float64 `json:"speed_vs_self"`
}

// minutesPerKm is the baseline pace used for time deviation.
const minutesPerKm = 4

// Features builds the oracle input. workerAvgSpeed is the worker's mean average
// speed over prior activities, 0 when unknown.
func (a Activity) Features(workerAvgSpeed float64) FeatureVector {
	fv := FeatureVector{
		ActivityID:        string(a.ID),
		WorkerID:          string(a.WorkerID),
		AvgSpeedKmh:       a.AvgSpeedKmh,
		MaxSpeedKmh:       a.MaxSpeedKmh,
		DistanceKm:        a.DistanceKm,
		DurationMin:       a.DurationMin,
		RouteDeviation:    a.RouteDeviation,
		SpeedRatio:        a.MaxSpeedKmh / (a.AvgSpeedKmh + 0.1),
		DistancePerMinute: a.DistanceKm / (a.DurationMin + 0.1),
		TimeDeviation:     a.DurationMin - a.DistanceKm*minutesPerKm,
		HourOfDay:         a.HourOfDay,
		DayOfWeek:         isoWeekday(a.Timestamp.Weekday()),
		IsNight:           a.IsNight(),
		IsWeekend:         a.Weekend,
		IsPeakHour:        (a.HourOfDay >= 12 && a.HourOfDay <= 14) || (a.HourOfDay >= 17 && a.HourOfDay <= 20),
	}
	if workerAvgSpeed > 0 {
		fv.SpeedVsSelf = a.AvgSpeedKmh - workerAvgSpeed
	}
	return fv
}

// isoWeekday maps Monday to 0 and Sunday to 6.
func isoWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// OutlierCluster marks an activity that belongs to no behavioral cluster.
const OutlierCluster = -1

// Verdict is the oracle's classification of one activity.
type Verdict struct {
	ActivityID id.ActivityID
	IsAnomaly  bool
	// Score is continuous; more negative is more anomalous.
	Score        float64
	Cluster      int
	Source       string
	ClassifiedAt time.Time

	// Worker history the activity was first scored against.
	PriorCount     int
	PriorAnomalous int
}

func (v Verdict) Outlier() bool {
	return v.Cluster == OutlierCluster
}
