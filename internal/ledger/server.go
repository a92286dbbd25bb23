package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medvault/pkg/platform/httputil"
)

// Server exposes a Chain over HTTP for HTTPClient.
type Server struct {
	chain  *Chain
	logger *slog.Logger
}

// NewServer creates the ledger node's HTTP handler.
func NewServer(chain *Chain, logger *slog.Logger) *Server {
	return &Server{chain: chain, logger: logger}
}

// Register mounts the ledger node routes.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/anchors", s.handleAnchor)
	r.Post("/v1/anchors/{ref}/check", s.handleCheck)
	r.Get("/v1/chain/verify", s.handleVerify)
	r.Get("/health", s.handleHealth)
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	var req fingerprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, NewError(CategoryBadData, "anchor", "invalid request body", err))
		return
	}
	ref, err := s.chain.Anchor(r.Context(), req.Fingerprint)
	if err != nil {
		s.logger.WarnContext(r.Context(), "anchor failed", "error", err)
		writeLedgerError(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "fingerprint anchored", "ref", ref)
	httputil.WriteJSON(w, http.StatusCreated, anchorResponse{Ref: ref})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req fingerprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, NewError(CategoryBadData, "check", "invalid request body", err))
		return
	}
	res, err := s.chain.Check(r.Context(), chi.URLParam(r, "ref"), req.Fingerprint)
	if err != nil {
		s.logger.WarnContext(r.Context(), "check failed", "error", err)
		writeLedgerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.chain.Verify(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if !report.Valid {
		s.logger.ErrorContext(r.Context(), "chain verification failed",
			"broken_at", report.BrokenAt,
			"reason", report.Reason,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	height, err := s.chain.Height()
	if err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "height": height})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	var le *Error
	if !errors.As(err, &le) {
		le = NewError(CategoryInternal, "", "unexpected error", err)
	}
	status := http.StatusInternalServerError
	switch le.Category {
	case CategoryRejected:
		status = http.StatusUnprocessableEntity
	case CategoryBadData:
		status = http.StatusBadRequest
	case CategoryTimeout:
		status = http.StatusGatewayTimeout
	case CategoryUnavailable:
		status = http.StatusServiceUnavailable
	case CategoryRateLimited:
		status = http.StatusTooManyRequests
	}
	httputil.WriteJSON(w, status, errorResponse{Error: string(le.Category), Description: le.Message})
}
