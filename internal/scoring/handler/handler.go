package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	actmodels "gigsafe/internal/activity/models"
	alerthandler "gigsafe/internal/alert/handler"
	"gigsafe/internal/scoring/models"
	"gigsafe/internal/scoring/service"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/httputil"
	"gigsafe/pkg/requestcontext"
)

type Service interface {
	Ingest(ctx context.Context, a actmodels.Activity) (service.IngestResult, error)
	Rescore(ctx context.Context, activityID id.ActivityID) (models.RiskScore, error)
	AggregateWorkerScore(ctx context.Context, workerID id.WorkerID) (models.RiskScore, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts ingestion, which is restricted to trusted feeds.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/activities", h.HandleIngest)
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/workers/{workerID}/score", h.HandleWorkerScore)
	r.Get("/activities/{activityID}/score", h.HandleActivityScore)
}

type VerdictResponse struct {
	IsAnomaly bool    `json:"is_anomaly"`
	Score     float64 `json:"anomaly_score"`
	Cluster   int     `json:"cluster"`
	Source    string  `json:"source,omitempty"`
}

type IngestResponse struct {
	ActivityID string                       `json:"activity_id"`
	WorkerID   string                       `json:"worker_id"`
	IngestedAt time.Time                    `json:"ingested_at"`
	Verdict    *VerdictResponse             `json:"verdict,omitempty"`
	Score      models.RiskScore             `json:"score"`
	Alerts     []alerthandler.AlertResponse `json:"alerts"`
}

func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ActivityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Ingest(ctx, req.Parsed())
	if err != nil {
		h.logger.WarnContext(ctx, "activity ingestion failed",
			"request_id", requestID,
			"worker_id", req.WorkerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := IngestResponse{
		ActivityID: string(result.Activity.ID),
		WorkerID:   string(result.Activity.WorkerID),
		IngestedAt: result.Activity.IngestedAt,
		Score:      result.Score,
		Alerts:     alerthandler.FromAlerts(result.Alerts),
	}
	if v := result.Verdict; v != nil {
		resp.Verdict = &VerdictResponse{IsAnomaly: v.IsAnomaly, Score: v.Score, Cluster: v.Cluster, Source: v.Source}
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) HandleWorkerScore(w http.ResponseWriter, r *http.Request) {
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	score, err := h.service.AggregateWorkerScore(r.Context(), workerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, score)
}

func (h *Handler) HandleActivityScore(w http.ResponseWriter, r *http.Request) {
	activityID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	score, err := h.service.Rescore(r.Context(), activityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, score)
}
