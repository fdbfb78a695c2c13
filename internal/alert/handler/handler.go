package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gigsafe/internal/alert/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/httputil"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Service interface {
	List(ctx context.Context, f models.Filter) ([]models.Alert, error)
	Get(ctx context.Context, alertID id.AlertID) (models.Alert, error)
	Acknowledge(ctx context.Context, alertID id.AlertID) (models.Alert, error)
	Resolve(ctx context.Context, alertID id.AlertID) (models.Alert, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/alerts", h.HandleList)
	r.Get("/alerts/{alertID}", h.HandleGet)
	r.Post("/alerts/{alertID}/acknowledge", h.HandleAcknowledge)
	r.Post("/alerts/{alertID}/resolve", h.HandleResolve)
}

type AlertResponse struct {
	ID             string     `json:"id"`
	WorkerID       string     `json:"worker_id"`
	ActivityID     string     `json:"activity_id"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Score          float64    `json:"score"`
	Message        string     `json:"message"`
	State          string     `json:"state"`
	RaisedAt       time.Time  `json:"raised_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

func FromAlert(a models.Alert) AlertResponse {
	return AlertResponse{
		ID:             a.ID.String(),
		WorkerID:       string(a.WorkerID),
		ActivityID:     string(a.ActivityID),
		Type:           string(a.Type),
		Severity:       string(a.Severity),
		Score:          a.Score,
		Message:        a.Message,
		State:          string(a.State),
		RaisedAt:       a.RaisedAt,
		AcknowledgedAt: a.AcknowledgedAt,
		ResolvedAt:     a.ResolvedAt,
	}
}

func FromAlerts(alerts []models.Alert) []AlertResponse {
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, FromAlert(a))
	}
	return out
}

type ListResponse struct {
	Alerts []AlertResponse `json:"alerts"`
	Count  int             `json:"count"`
}

// ParseFilter reads worker_id, state and limit query parameters.
func ParseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	f := models.Filter{Limit: defaultListLimit}
	if raw := q.Get("worker_id"); raw != "" {
		workerID, err := id.ParseWorkerID(raw)
		if err != nil {
			return models.Filter{}, err
		}
		f.WorkerID = workerID
	}
	state, err := models.ParseState(q.Get("state"))
	if err != nil {
		return models.Filter{}, err
	}
	f.State = state
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			return models.Filter{}, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 500")
		}
		f.Limit = n
	}
	return f, nil
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	alerts, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list alerts", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Alerts: FromAlerts(alerts), Count: len(alerts)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.withAlert(w, r, h.service.Get)
}

func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.withAlert(w, r, h.service.Acknowledge)
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	h.withAlert(w, r, h.service.Resolve)
}

func (h *Handler) withAlert(w http.ResponseWriter, r *http.Request, fn func(context.Context, id.AlertID) (models.Alert, error)) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := fn(r.Context(), alertID)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(r.Context(), "alert request failed", "alert_id", alertID.String(), "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAlert(a))
}
