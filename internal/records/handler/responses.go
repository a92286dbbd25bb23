package handler

import (
	"time"

	"medvault/internal/records/models"
	"medvault/pkg/detail"
)

// RecordResponse exposes record metadata and the sealed payload. Payload is
// base64 in JSON.
type RecordResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	CreatorID   string    `json:"creator_id"`
	AuthorityID string    `json:"authority_id"`
	CreatedAt   time.Time `json:"created_at"`
	AnchorRef   string    `json:"anchor_ref"`
	Payload     []byte    `json:"payload"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}

type OpenRecordResponse struct {
	Record RecordResponse `json:"record"`
	Data   *detail.Map    `json:"data"`
}

func toRecordResponse(r *models.Record) RecordResponse {
	return RecordResponse{
		ID:          r.ID.String(),
		OwnerID:     r.OwnerID.String(),
		CreatorID:   r.CreatorID.String(),
		AuthorityID: r.AuthorityID.String(),
		CreatedAt:   r.CreatedAt,
		AnchorRef:   r.AnchorRef,
		Payload:     r.Payload,
	}
}

func toRecordListResponse(records []*models.Record) RecordListResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordResponse(r))
	}
	return RecordListResponse{Records: out}
}
