package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medvault/internal/access/models"
	"medvault/internal/access/service"
	"medvault/internal/vault"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/httputil"
	"medvault/pkg/requestcontext"
)

// IdempotencyKeyHeader lets clients retry request creation safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// Service defines the access operations exposed over HTTP.
type Service interface {
	CreateRequest(ctx context.Context, caller id.Caller, recordID id.RecordID, idempotencyKey string) (*models.Request, error)
	Approve(ctx context.Context, caller id.Caller, requestID id.RequestID) (*service.Decision, error)
	Decline(ctx context.Context, caller id.Caller, requestID id.RequestID) (*models.Request, error)
	Withdraw(ctx context.Context, caller id.Caller, requestID id.RequestID) (*models.Request, error)
	ListForOwner(ctx context.Context, caller id.Caller, filter models.Filter) ([]*models.Request, error)
	ListForRequester(ctx context.Context, caller id.Caller, filter models.Filter) ([]*models.Request, error)
	RetrieveKey(ctx context.Context, caller id.Caller, recordID id.RecordID) (*vault.KeyGrant, error)
}

// Handler handles access request endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register registers the access routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records/{id}/access-requests", h.HandleCreate)
	r.Get("/records/{id}/key", h.HandleRetrieveKey)
	r.Get("/access-requests/inbox", h.HandleInbox)
	r.Get("/access-requests/outbox", h.HandleOutbox)
	r.Post("/access-requests/{id}/approve", h.HandleApprove)
	r.Post("/access-requests/{id}/decline", h.HandleDecline)
	r.Post("/access-requests/{id}/withdraw", h.HandleWithdraw)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.service.CreateRequest(ctx, caller, recordID, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAccessRequestResponse(req))
}

func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListForOwner)
}

func (h *Handler) HandleOutbox(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListForRequester)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, id.Caller, models.Filter) ([]*models.Request, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var filter models.Filter
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, err := models.ParseState(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.State = state
	}

	requests, err := fn(ctx, caller, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccessRequestListResponse(requests))
}

// HandleApprove grants the request. The released key is not returned to the
// owner; the requester fetches it from the key endpoint.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, caller id.Caller, requestID id.RequestID) (*models.Request, error) {
		decision, err := h.service.Approve(ctx, caller, requestID)
		if err != nil {
			return nil, err
		}
		clear(decision.Grant.Key)
		return decision.Request, nil
	})
}

func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Decline)
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Withdraw)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, id.Caller, id.RequestID) (*models.Request, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	accessRequestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := fn(ctx, caller, accessRequestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccessRequestResponse(updated))
}

func (h *Handler) HandleRetrieveKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grant, err := h.service.RetrieveKey(ctx, caller, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, toKeyResponse(grant))
	clear(grant.Key)
}
