package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gigsafe/internal/regional/models"
	"gigsafe/internal/regional/service"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/httputil"
)

// Service is the read side of the regional risk context.
type Service interface {
	Get(region string) models.Lookup
	YearOverYear(region string) (float64, bool)
	Top(n int) []models.RegionRisk
	Stale() bool
	Diagnostics() service.Diagnostics
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/regional/diagnostics", h.HandleDiagnostics)
	r.Get("/regional/risk", h.HandleRisk)
	r.Get("/regional/top", h.HandleTop)
}

func (h *Handler) HandleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Diagnostics())
}

type RiskResponse struct {
	Region       string    `json:"region"`
	RiskIndex    float64   `json:"risk_index"`
	Fallback     bool      `json:"fallback"`
	Stale        bool      `json:"stale"`
	AsOf         time.Time `json:"as_of"`
	YearOverYear *float64  `json:"yoy_change_pct,omitempty"`
}

// HandleRisk answers GET /regional/risk?region=<name>.
func (h *Handler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	region := strings.TrimSpace(r.URL.Query().Get("region"))
	if region == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "region is required"))
		return
	}
	lookup := h.service.Get(region)
	resp := RiskResponse{
		Region:    string(lookup.Region),
		RiskIndex: lookup.Index,
		Fallback:  lookup.Fallback,
		Stale:     lookup.Stale,
		AsOf:      lookup.AsOf,
	}
	if yoy, ok := h.service.YearOverYear(region); ok {
		resp.YearOverYear = &yoy
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

const (
	defaultTopRegions = 10
	maxTopRegions     = 100
)

type TopResponse struct {
	Regions []models.RegionRisk `json:"regions"`
	Count   int                 `json:"count"`
	Stale   bool                `json:"stale"`
}

// HandleTop answers GET /regional/top?n=<count>, highest risk first.
func (h *Handler) HandleTop(w http.ResponseWriter, r *http.Request) {
	n := defaultTopRegions
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTopRegions {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "n must be between 1 and 100"))
			return
		}
		n = parsed
	}
	regions := h.service.Top(n)
	httputil.WriteJSON(w, http.StatusOK, TopResponse{
		Regions: regions,
		Count:   len(regions),
		Stale:   h.service.Stale(),
	})
}
