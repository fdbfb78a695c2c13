package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gigsafe/internal/credential/models"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/httputil"
	"gigsafe/pkg/requestcontext"
)

// Service defines the credential operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, w models.Worker) (models.Worker, error)
	Get(ctx context.Context, workerID id.WorkerID) (models.Worker, error)
	Issue(ctx context.Context, workerID id.WorkerID) (models.Credential, error)
	Revoke(ctx context.Context, workerID id.WorkerID, reason string) error
	Reissue(ctx context.Context, workerID id.WorkerID, update models.IdentityUpdate) (models.Credential, error)
}

// Handler wires worker and credential endpoints to the credential service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts endpoints that require the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/workers", h.HandleRegister)
}

// RegisterAuthenticated mounts endpoints that require an operator token.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/workers/{workerID}/credential", h.HandleIssue)
	r.Delete("/workers/{workerID}/credential", h.HandleRevoke)
	r.Post("/workers/{workerID}/credential/reissue", h.HandleReissue)
}

// Register mounts public read endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/workers/{workerID}", h.HandleGet)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	worker, err := h.service.Register(ctx, req.Parsed())
	if err != nil {
		h.logger.WarnContext(ctx, "worker registration failed",
			"request_id", requestID,
			"worker_id", req.WorkerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromWorker(worker))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	worker, err := h.service.Get(r.Context(), workerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWorker(worker))
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cred, err := h.service.Issue(ctx, workerID)
	if err != nil {
		h.logger.WarnContext(ctx, "credential issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"worker_id", workerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromCredential(cred))
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "unspecified"
	}
	if err := h.service.Revoke(ctx, workerID, reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleReissue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var update models.IdentityUpdate
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[ReissueRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		update = req.Update()
	}

	cred, err := h.service.Reissue(ctx, workerID, update)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCredential(cred))
}
