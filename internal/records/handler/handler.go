package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medvault/internal/records/models"
	"medvault/internal/records/service"
	id "medvault/pkg/domain"
	"medvault/pkg/detail"
	"medvault/pkg/platform/httputil"
	"medvault/pkg/requestcontext"
)

// Service defines the record operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, caller id.Caller, ownerID id.SubjectID, data *detail.Map) (*models.Record, error)
	Get(ctx context.Context, caller id.Caller, recordID id.RecordID) (*models.Record, error)
	ListByOwner(ctx context.Context, caller id.Caller) ([]*models.Record, error)
	ListByCreatorAuthority(ctx context.Context, caller id.Caller) ([]*models.Record, error)
	Open(ctx context.Context, caller id.Caller, recordID id.RecordID, key []byte) (*service.Opened, error)
}

// Handler handles record endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register registers the record routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records", h.HandleCreate)
	r.Get("/records", h.HandleListMine)
	r.Get("/authorities/me/records", h.HandleListAuthority)
	r.Get("/records/{id}", h.HandleGet)
	r.Post("/records/{id}/open", h.HandleOpen)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ownerID, err := id.ParseSubjectID(req.OwnerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Create(ctx, caller, ownerID, req.Data)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create record",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListByOwner)
}

func (h *Handler) HandleListAuthority(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListByCreatorAuthority)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, id.Caller) ([]*models.Record, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := fn(ctx, caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordListResponse(records))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	record, err := h.service.Get(ctx, caller, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
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
	req, ok := httputil.DecodeAndPrepare[OpenRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	opened, err := h.service.Open(ctx, caller, recordID, req.decoded)
	clear(req.decoded)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to open record",
			"request_id", requestID,
			"record_id", recordID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OpenRecordResponse{
		Record: toRecordResponse(opened.Record),
		Data:   opened.Document.Data,
	})
}
