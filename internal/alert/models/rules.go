package models

import "fmt"

type rule struct {
	typ   Type
	match func(Evaluation, Thresholds) (string, bool)
}

// rules are evaluated in order; BehavioralAnomaly is only considered when
// none of them match.
var rules = []rule{
	{TypeRashDriving, func(e Evaluation, t Thresholds) (string, bool) {
		a := e.Activity
		if a.MaxSpeedKmh <= t.MaxSpeedKmh {
			return "", false
		}
		return fmt.Sprintf("max speed %.1f km/h exceeds %.0f km/h", a.MaxSpeedKmh, t.MaxSpeedKmh), true
	}},
	{TypeRouteDeviation, func(e Evaluation, t Thresholds) (string, bool) {
		a := e.Activity
		if a.RouteDeviation <= t.RouteDeviation {
			return "", false
		}
		return fmt.Sprintf("route deviation %.1f exceeds %.0f", a.RouteDeviation, t.RouteDeviation), true
	}},
	{TypeUnusualTiming, func(e Evaluation, _ Thresholds) (string, bool) {
		if !e.Activity.IsNight() {
			return "", false
		}
		return fmt.Sprintf("activity at %02d:00 falls in night hours", e.Activity.HourOfDay), true
	}},
	{TypeUnauthorizedAccess, func(e Evaluation, _ Thresholds) (string, bool) {
		w, a := e.Worker, e.Activity
		if !w.IsBankingAgent() {
			return "", false
		}
		if !a.AccessAttempt && a.VisitType == "" {
			return "", false
		}
		if !w.AuthorizationValid(a.Timestamp) {
			return "banking agent authorization expired", true
		}
		if a.IsAePSVisit() && !w.AePSEnabled {
			return "AePS transaction attempted while AePS is disabled", true
		}
		return "", false
	}},
}

// Candidates runs the rule table against one evaluation.
func Candidates(e Evaluation, t Thresholds) []Candidate {
	var out []Candidate
	for _, r := range rules {
		if msg, ok := r.match(e, t); ok {
			out = append(out, Candidate{Type: r.typ, Message: msg})
		}
	}
	if len(out) == 0 && e.Verdict.IsAnomaly {
		out = append(out, Candidate{
			Type:    TypeBehavioralAnomaly,
			Message: fmt.Sprintf("behavioral anomaly (score %.3f, cluster %d)", e.Verdict.Score, e.Verdict.Cluster),
		})
	}
	return out
}
