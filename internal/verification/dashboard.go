package verification

import (
	"context"

	"golang.org/x/sync/errgroup"

	alertmodels "gigsafe/internal/alert/models"
	credmodels "gigsafe/internal/credential/models"
	scoremodels "gigsafe/internal/scoring/models"
)

const (
	DefaultDashboardLimit = 10
	MaxDashboardLimit     = 100
)

type Stats struct {
	Workers           map[credmodels.WorkerType]int `json:"workers"`
	TotalWorkers      int                           `json:"total_workers"`
	OpenAlerts        int                           `json:"open_alerts"`
	HighRisk          int                           `json:"high_risk_workers"`
	AverageRiskScore  float64                       `json:"average_risk_score"`
	AnomaliesDetected int                           `json:"anomalies_detected"`
	RegionalStale     bool                          `json:"regional_data_stale"`
}

// Stats gathers the headline counts. A failed count fails the whole call since
// partial dashboard figures are misleading.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		out     Stats
		summary scoremodels.Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.credentials.CountByType(gctx)
		if err != nil {
			return err
		}
		out.Workers = counts
		return nil
	})
	g.Go(func() error {
		n, err := s.alerts.CountOpen(gctx)
		if err != nil {
			return err
		}
		out.OpenAlerts = n
		return nil
	})
	g.Go(func() error {
		var err error
		summary, err = s.scores.Summarize(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	for _, n := range out.Workers {
		out.TotalWorkers += n
	}
	out.HighRisk = summary.HighRisk
	out.AverageRiskScore = summary.AverageScore
	out.AnomaliesDetected = summary.AnomaliesDetected
	out.RegionalStale = s.regional.Stale()
	return out, nil
}

func (s *Service) HighRiskWorkers(ctx context.Context, limit int) ([]scoremodels.RiskScore, error) {
	return s.scores.HighRiskWorkers(ctx, clampLimit(limit))
}

// RecentAlerts lists the newest alerts in any state.
func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]alertmodels.Alert, error) {
	return s.alerts.List(ctx, alertmodels.Filter{Limit: clampLimit(limit)})
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultDashboardLimit
	case limit > MaxDashboardLimit:
		return MaxDashboardLimit
	default:
		return limit
	}
}
