package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	alerthandler "gigsafe/internal/alert/handler"
	alertmodels "gigsafe/internal/alert/models"
	credmodels "gigsafe/internal/credential/models"
	scoremodels "gigsafe/internal/scoring/models"
	"gigsafe/internal/verification"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/httputil"
	"gigsafe/pkg/requestcontext"
)

type Service interface {
	VerifyPayload(ctx context.Context, payload string) (verification.Result, error)
	VerifyHash(ctx context.Context, hash string) (verification.Result, error)
	Stats(ctx context.Context) (verification.Stats, error)
	HighRiskWorkers(ctx context.Context, limit int) ([]scoremodels.RiskScore, error)
	RecentAlerts(ctx context.Context, limit int) ([]alertmodels.Alert, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Get("/verify/{hash}", h.HandleVerifyHash)
	r.Get("/dashboard/stats", h.HandleStats)
	r.Get("/dashboard/high-risk", h.HandleHighRisk)
	r.Get("/dashboard/alerts", h.HandleRecentAlerts)
}

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	Payload string `json:"payload"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Payload = strings.TrimSpace(r.Payload)
	if r.Payload == "" {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.VerifyPayload(ctx, req.Payload)
	h.writeResult(ctx, w, result, err)
}

func (h *Handler) HandleVerifyHash(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyHash(r.Context(), chi.URLParam(r, "hash"))
	h.writeResult(r.Context(), w, result, err)
}

// writeResult answers 200 for a definite credential outcome and 404 with the
// same body shape when no credential matched.
func (h *Handler) writeResult(ctx context.Context, w http.ResponseWriter, result verification.Result, err error) {
	if err != nil {
		h.logger.WarnContext(ctx, "verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if result.Status == credmodels.StatusNotFound {
		status = http.StatusNotFound
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type HighRiskResponse struct {
	Workers []scoremodels.RiskScore `json:"workers"`
	Count   int                     `json:"count"`
}

func (h *Handler) HandleHighRisk(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scores, err := h.service.HighRiskWorkers(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HighRiskResponse{Workers: scores, Count: len(scores)})
}

func (h *Handler) HandleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	alerts, err := h.service.RecentAlerts(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := alerthandler.ListResponse{Alerts: alerthandler.FromAlerts(alerts)}
	resp.Count = len(resp.Alerts)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// parseLimit returns 0 when absent so the service applies its default.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > verification.MaxDashboardLimit {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
	}
	return n, nil
}
