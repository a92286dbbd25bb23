package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/platform/httputil"
	"medvault/pkg/requestcontext"
)

// Handler serves the caller's own audit trail.
type Handler struct {
	publisher *Publisher
	logger    *slog.Logger
}

func NewHandler(publisher *Publisher, logger *slog.Logger) *Handler {
	return &Handler{publisher: publisher, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/me", h.HandleListMine)
}

type listResponse struct {
	Events []Event `json:"events"`
}

// HandleListMine returns events where the caller acted or is the data subject.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.publisher.ListBySubject(ctx, caller.SubjectID.String())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Events: events})
}
